package qrsession

import "time"

// Session is one attendance token as persisted under the qr_sessions key.
type Session struct {
	Token        string     `json:"token"`
	IssuerID     string     `json:"issuerId"`
	IssuerName   string     `json:"issuerName"`
	ClassLabel   string     `json:"classLabel"`
	SubjectLabel string     `json:"subjectLabel"`
	PeriodLabel  string     `json:"periodLabel"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Used         bool       `json:"used"`
	UsedBy       string     `json:"usedBy,omitempty"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
}

// Consumable reports whether the token can still be validated at now.
func (s Session) Consumable(now time.Time) bool {
	return !s.Used && now.Before(s.ExpiresAt)
}

func (s Session) Info() SessionInfo {
	return SessionInfo{
		ClassLabel:   s.ClassLabel,
		SubjectLabel: s.SubjectLabel,
		PeriodLabel:  s.PeriodLabel,
		IssuerID:     s.IssuerID,
		IssuerName:   s.IssuerName,
	}
}

func (s Session) payload() Payload {
	return Payload{
		Token:        s.Token,
		ClassLabel:   s.ClassLabel,
		SubjectLabel: s.SubjectLabel,
		PeriodLabel:  s.PeriodLabel,
		IssuerName:   s.IssuerName,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// wellFormed rejects persisted records that break the session invariants.
func (s Session) wellFormed(key string) bool {
	if s.Token == "" || s.Token != key || s.CreatedAt.IsZero() || s.ExpiresAt.IsZero() {
		return false
	}
	if s.Used {
		return s.UsedBy != "" && s.UsedAt != nil
	}
	return s.UsedBy == "" && s.UsedAt == nil
}

// Payload is what the issuer hands to whatever renders the scannable code.
type Payload struct {
	Token        string    `json:"token"`
	ClassLabel   string    `json:"classLabel"`
	SubjectLabel string    `json:"subjectLabel"`
	PeriodLabel  string    `json:"periodLabel"`
	IssuerName   string    `json:"issuerName"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SessionInfo is returned by a successful ValidateAndConsume.
type SessionInfo struct {
	ClassLabel   string `json:"classLabel"`
	SubjectLabel string `json:"subjectLabel"`
	PeriodLabel  string `json:"periodLabel"`
	IssuerID     string `json:"issuerId"`
	IssuerName   string `json:"issuerName"`
}
