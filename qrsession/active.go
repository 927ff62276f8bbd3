package qrsession

import (
	"fmt"
	"sort"
	"time"

	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/kvstore"
)

// ActiveKey holds the sessions an issuer is still presenting, token -> ActiveEntry.
// Leaving this list is a display concern only: a stopped token stays consumable
// until it expires.
const ActiveKey = "qr_active_sessions"

type ActiveEntry struct {
	Token     string    `json:"token"`
	IssuerID  string    `json:"issuerId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Stop takes token off its issuer's active list. It does not invalidate the token;
// use Revoke for that.
func (e *Engine) Stop(token string) error {
	err := e.updateActive(func(active map[string]ActiveEntry) (bool, error) {
		if _, ok := active[token]; !ok {
			return false, errors.Wrapf(ErrNotFound, "active qr session %q", token)
		}
		delete(active, token)
		return true, nil
	})
	if err != nil {
		return err
	}
	e.logger.Info().Str("token", token).Msg("qr session stopped")
	return nil
}

// ResumeLatest returns the most recent session issuerID is still presenting, so a
// reopened dashboard can show it again. Entries that expired or no longer have a
// session are dropped on the way. ErrNotFound means there is nothing to resume.
func (e *Engine) ResumeLatest(issuerID string) (Session, error) {
	sessions, err := e.load()
	if err != nil {
		return Session{}, err
	}

	now := e.nowTime().UTC()
	var latest *ActiveEntry
	err = e.updateActive(func(active map[string]ActiveEntry) (bool, error) {
		latest = nil
		changed := false
		candidates := make([]ActiveEntry, 0)
		for token, entry := range active {
			if entry.IssuerID != issuerID {
				continue
			}
			if _, exists := sessions[token]; !exists || !now.Before(entry.ExpiresAt) {
				delete(active, token)
				changed = true
				continue
			}
			candidates = append(candidates, entry)
		}
		if len(candidates) > 0 {
			sortEntries(candidates)
			latest = &candidates[len(candidates)-1]
		}
		return changed, nil
	})
	if err != nil {
		return Session{}, err
	}
	if latest == nil {
		return Session{}, errors.Wrapf(ErrNotFound, "no active qr session for %q", issuerID)
	}
	return sessions[latest.Token], nil
}

// ActiveForIssuer lists issuerID's active list entries, oldest first, expired or not.
func (e *Engine) ActiveForIssuer(issuerID string) ([]ActiveEntry, error) {
	raw, _, err := e.store.Get(ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("load active qr sessions: %w", err)
	}
	entries := make([]ActiveEntry, 0)
	for _, entry := range e.decodeActive(raw) {
		if entry.IssuerID == issuerID {
			entries = append(entries, entry)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (e *Engine) markActive(s Session) error {
	return e.updateActive(func(active map[string]ActiveEntry) (bool, error) {
		active[s.Token] = ActiveEntry{Token: s.Token, IssuerID: s.IssuerID, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}
		return true, nil
	})
}

// pruneActive drops entries that have expired by now.
func (e *Engine) pruneActive(now time.Time) error {
	return e.updateActive(func(active map[string]ActiveEntry) (bool, error) {
		changed := false
		for token, entry := range active {
			if !now.Before(entry.ExpiresAt) {
				delete(active, token)
				changed = true
			}
		}
		return changed, nil
	})
}

func (e *Engine) updateActive(fn func(active map[string]ActiveEntry) (bool, error)) error {
	return kvstore.WithLatest(e.store, ActiveKey, func(cur string, _ bool) (string, bool, error) {
		active := e.decodeActive(cur)
		changed, err := fn(active)
		if err != nil || !changed {
			return "", false, err
		}
		next, err := kvstore.EncodeJSON(active)
		return next, true, err
	})
}

func (e *Engine) decodeActive(raw string) map[string]ActiveEntry {
	active, err := kvstore.DecodeJSON[map[string]ActiveEntry](ActiveKey, raw)
	if err != nil {
		e.logger.Warn().Err(err).Msg("active qr sessions unreadable, treating as empty")
		return make(map[string]ActiveEntry)
	}
	if active == nil {
		return make(map[string]ActiveEntry)
	}
	return active
}

func sortEntries(entries []ActiveEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Token < entries[j].Token
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
