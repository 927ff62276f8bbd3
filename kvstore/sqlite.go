package kvstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	_ Versioned = (*SQLite)(nil)
	_ Notifier  = (*SQLite)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key     TEXT PRIMARY KEY,
	value   TEXT NOT NULL,
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_clock (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	n  INTEGER NOT NULL
);
INSERT OR IGNORE INTO kv_clock (id, n) VALUES (1, 0);
`

// SQLite is a file backed Store. Every write runs in an immediate transaction so
// CompareAndSet is atomic across processes sharing the file.
type SQLite struct {
	db *sql.DB
	listeners
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(key string) (string, bool, error) {
	value, _, ok, err := s.GetVersioned(key)
	return value, ok, err
}

func (s *SQLite) GetVersioned(key string) (string, uint64, bool, error) {
	var (
		value   string
		version uint64
	)
	err := s.db.QueryRow(`SELECT value, version FROM kv WHERE key = ?`, key).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, version, true, nil
}

func (s *SQLite) Set(key, value string) error {
	var old string
	err := s.inTx(func(tx *sql.Tx) error {
		var err error
		if old, _, _, err = current(tx, key); err != nil {
			return err
		}
		return put(tx, key, value)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	s.publish(Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (s *SQLite) CompareAndSet(key, value string, version uint64) (bool, error) {
	var (
		old     string
		swapped bool
	)
	err := s.inTx(func(tx *sql.Tx) error {
		cur, curVersion, ok, err := current(tx, key)
		if err != nil {
			return err
		}
		if (version == 0 && ok) || (version != 0 && (!ok || curVersion != version)) {
			return nil
		}
		old, swapped = cur, true
		return put(tx, key, value)
	})
	if err != nil {
		return false, fmt.Errorf("compare and set %q: %w", key, err)
	}
	if swapped {
		s.publish(Change{Key: key, OldValue: old, NewValue: value})
	}
	return swapped, nil
}

func (s *SQLite) Remove(key string) error {
	var (
		old     string
		existed bool
	)
	err := s.inTx(func(tx *sql.Tx) error {
		var err error
		if old, _, existed, err = current(tx, key); err != nil || !existed {
			return err
		}
		_, err = tx.Exec(`DELETE FROM kv WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	if existed {
		s.publish(Change{Key: key, OldValue: old, Removed: true})
	}
	return nil
}

func (s *SQLite) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func current(tx *sql.Tx, key string) (string, uint64, bool, error) {
	var (
		value   string
		version uint64
	)
	err := tx.QueryRow(`SELECT value, version FROM kv WHERE key = ?`, key).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return value, version, true, nil
}

func put(tx *sql.Tx, key, value string) error {
	var version uint64
	if err := tx.QueryRow(`UPDATE kv_clock SET n = n + 1 WHERE id = 1 RETURNING n`).Scan(&version); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO kv (key, value, version) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = excluded.version`, key, value, version)
	return err
}
