// Package store manages all SQLite persistence for edgebill.
//
// One WAL-mode SQLite database per site is the shared transactional store
// that the event log, the dedup window, and the lease lock all sit on. It
// supplies the capabilities the design needs: atomic monotonic seqno
// generation (AUTOINCREMENT), range deletes, snapshot reads for listing
// while an ack is in flight, a database-wide write lock for the seqno
// rebase, and a single clock every lease comparison goes through.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daviddao/edgebill/pkg/clock"
	"github.com/daviddao/edgebill/pkg/model"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db  *sql.DB
	clk clock.Source
}

// Option adjusts Store construction.
type Option func(*Store)

// WithClock replaces the authoritative time source. Production code keeps
// the default (the database's own clock); tests inject clock.Manual to
// step lease expiry deterministically.
func WithClock(src clock.Source) Option {
	return func(s *Store) { s.clk = src }
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, clk: &dbClock{db: db}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations should use this to handle transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent access.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seqno      INTEGER PRIMARY KEY AUTOINCREMENT,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS msgids (
		ord   INTEGER PRIMARY KEY AUTOINCREMENT,
		msgid TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		key        TEXT PRIMARY KEY,
		owner      TEXT,
		expires_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subscribers (
		imsi       TEXT PRIMARY KEY,
		balance    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Now returns the authoritative time every lease comparison uses. By
// default this is the database's clock, so every process sharing the store
// agrees on it regardless of local clock skew.
func (s *Store) Now() (time.Time, error) {
	return s.clk.Now()
}

// dbClock reads SQLite's clock through the shared connection. SQLite has
// no per-transaction timestamp like Postgres's now(), but the engine clock
// of the one shared database serves the same role: a single authority.
type dbClock struct {
	db *sql.DB
}

func (c *dbClock) Now() (time.Time, error) {
	var ts string
	if err := c.db.QueryRow(
		`SELECT strftime('%Y-%m-%dT%H:%M:%f', 'now')`,
	).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("read db clock: %w", err)
	}
	t, err := time.Parse("2006-01-02T15:04:05.000", ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse db clock %q: %w", ts, err)
	}
	return t.UTC(), nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// AppendEvent persists a billing event and returns its assigned seqno.
// Seqnos come from the AUTOINCREMENT column: strictly increasing, assigned
// atomically, never reused even after rows are ack-pruned.
func (s *Store) AppendEvent(payload map[string]any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	now, err := s.clk.Now()
	if err != nil {
		return 0, err
	}
	var seqno int64
	err = retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO events (payload, created_at) VALUES (?, ?)`,
			string(body), now.Format(timeLayout),
		)
		if err != nil {
			return err
		}
		seqno, err = res.LastInsertId()
		return err
	})
	return seqno, err
}

// AckEvents deletes every event with seqno <= through. A single DELETE
// statement, so the prune is all-or-nothing; acking an already-acked or
// smaller seqno deletes nothing and is a no-op.
func (s *Store) AckEvents(through int64) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM events WHERE seqno <= ?`, through)
		return err
	})
}

// ListPendingEvents returns the lowest-seqno unacked events in ascending
// order, at most limit of them. WAL gives the read a consistent snapshot:
// a concurrent ack never exposes a half-applied prune.
func (s *Store) ListPendingEvents(limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT seqno, payload, created_at FROM events ORDER BY seqno ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountEvents returns the number of unacked events.
func (s *Store) CountEvents() int64 {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// MaxSeqno returns the highest unacked seqno, or 0 if the log is empty.
func (s *Store) MaxSeqno() int64 {
	var n int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seqno), 0) FROM events`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// ResetSeqno rebases the seqno counter so the next append yields value+1.
// Disaster-recovery only (restoring a DB, re-cloning a site). The whole
// rebase runs in one write transaction; SQLite permits a single writer at
// a time, so no append can interleave with it — the equivalent of the
// whole-log exclusive lock this operation demands. Because AUTOINCREMENT
// takes max(sequence, max rowid)+1, rebasing below the highest live seqno
// cannot mint a duplicate.
func (s *Store) ResetSeqno(value int64) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.Exec(
			`INSERT INTO sqlite_sequence (name, seq)
			 SELECT 'events', ?
			 WHERE NOT EXISTS (SELECT 1 FROM sqlite_sequence WHERE name = 'events')`,
			value,
		); err != nil {
			return fmt.Errorf("seed sequence: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE sqlite_sequence SET seq = ? WHERE name = 'events'`, value,
		); err != nil {
			return fmt.Errorf("rebase sequence: %w", err)
		}
		return tx.Commit()
	})
}

// DropAllEvents wipes the log without touching the seqno counter, so a
// later append continues the old numbering rather than reusing it.
func (s *Store) DropAllEvents() error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM events`)
		return err
	})
}

// ModifiedSubscribers returns the distinct subscriber IMSIs that appear in
// pending events — the accounts with activity not yet acked by the cloud.
func (s *Store) ModifiedSubscribers() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT json_extract(payload, '$.imsi') AS imsi
		 FROM events
		 WHERE json_extract(payload, '$.imsi') IS NOT NULL
		 ORDER BY imsi`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imsis []string
	for rows.Next() {
		var imsi string
		if err := rows.Scan(&imsi); err != nil {
			return nil, err
		}
		imsis = append(imsis, imsi)
	}
	return imsis, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		var body, createdStr string
		if err := rows.Scan(&e.Seqno, &body, &createdStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for seqno %d: %w", e.Seqno, err)
		}
		var parseErr error
		e.CreatedAt, parseErr = time.Parse(timeLayout, createdStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at for seqno %d: %w", e.Seqno, parseErr)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// Dedup window
// ---------------------------------------------------------------------------

// SeenMsgID reports whether msgid is in the dedup window. If not, it is
// recorded and every record more than maxLen insertions old is evicted,
// all in one transaction. The window is FIFO by insertion order: correct
// for the most recent maxLen distinct ids, silent about older ones.
//
// Two processes racing on the same novel msgid both reach the INSERT; the
// UNIQUE constraint rejects the loser, which is reported as seen — exactly
// the duplicate-suppression the window exists for.
func (s *Store) SeenMsgID(msgid string, maxLen int) (bool, error) {
	var seen bool
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		var ord int64
		err = tx.QueryRow(`SELECT ord FROM msgids WHERE msgid = ?`, msgid).Scan(&ord)
		if err == nil {
			seen = true
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.Exec(`INSERT INTO msgids (msgid) VALUES (?)`, msgid)
		if err != nil {
			if isUniqueViolation(err) {
				seen = true
				return nil
			}
			return err
		}
		ord, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`DELETE FROM msgids WHERE ord <= ?`, ord-int64(maxLen),
		); err != nil {
			return err
		}
		seen = false
		return tx.Commit()
	})
	return seen, err
}

// CountMsgIDs returns the number of identifiers currently retained.
func (s *Store) CountMsgIDs() int64 {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM msgids`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// ---------------------------------------------------------------------------
// Leases
// ---------------------------------------------------------------------------

// AcquireLease grants or renews the named lease. The entire read-decide-
// write runs in one transaction against the shared clock: unheld, released,
// expired, or already-ours all grant and set expires_at = now + ttl; a live
// lease under a different owner denies with no side effects.
func (s *Store) AcquireLease(key, owner string, ttl time.Duration) (bool, error) {
	if owner == "" {
		return false, fmt.Errorf("acquire lease %q: empty owner", key)
	}
	now, err := s.clk.Now()
	if err != nil {
		return false, err
	}
	expires := now.Add(ttl)

	var granted bool
	err = retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		var curOwner sql.NullString
		var expStr string
		err = tx.QueryRow(
			`SELECT owner, expires_at FROM leases WHERE key = ?`, key,
		).Scan(&curOwner, &expStr)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec(
				`INSERT INTO leases (key, owner, expires_at) VALUES (?, ?, ?)`,
				key, owner, expires.Format(timeLayout),
			); err != nil {
				return err
			}
			granted = true
			return tx.Commit()
		case err != nil:
			return err
		}

		curExpires, err := time.Parse(timeLayout, expStr)
		if err != nil {
			return fmt.Errorf("parse lease expires_at for %q: %w", key, err)
		}
		free := !curOwner.Valid || curOwner.String == "" || // released
			curOwner.String == owner || // heartbeat renewal
			!now.Before(curExpires) // lazy expiry
		if !free {
			granted = false
			return nil
		}
		if _, err := tx.Exec(
			`UPDATE leases SET owner = ?, expires_at = ? WHERE key = ?`,
			owner, expires.Format(timeLayout), key,
		); err != nil {
			return err
		}
		granted = true
		return tx.Commit()
	})
	return granted, err
}

// ReleaseLease releases the named lease if owner currently holds it and
// reports whether the release took effect. The row is kept with a cleared
// owner so the key's history of use stays visible to operators.
func (s *Store) ReleaseLease(key, owner string) (bool, error) {
	var released bool
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		var curOwner sql.NullString
		err = tx.QueryRow(`SELECT owner FROM leases WHERE key = ?`, key).Scan(&curOwner)
		if err == sql.ErrNoRows {
			released = false
			return nil
		}
		if err != nil {
			return err
		}
		if !curOwner.Valid || curOwner.String != owner {
			released = false
			return nil
		}
		if _, err := tx.Exec(
			`UPDATE leases SET owner = NULL WHERE key = ?`, key,
		); err != nil {
			return err
		}
		released = true
		return tx.Commit()
	})
	return released, err
}

// GetLease returns the named lease, or nil if the key has never been
// locked.
func (s *Store) GetLease(key string) (*model.Lease, error) {
	var l model.Lease
	var owner sql.NullString
	var expStr string
	err := s.db.QueryRow(
		`SELECT key, owner, expires_at FROM leases WHERE key = ?`, key,
	).Scan(&l.Key, &owner, &expStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		l.Owner = owner.String
	}
	l.ExpiresAt, err = time.Parse(timeLayout, expStr)
	if err != nil {
		return nil, fmt.Errorf("parse lease expires_at for %q: %w", key, err)
	}
	return &l, nil
}

// ListLeases returns every lease row ordered by key, released ones
// included (their owner is empty).
func (s *Store) ListLeases() ([]model.Lease, error) {
	rows, err := s.db.Query(`SELECT key, owner, expires_at FROM leases ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leases []model.Lease
	for rows.Next() {
		var l model.Lease
		var owner sql.NullString
		var expStr string
		if err := rows.Scan(&l.Key, &owner, &expStr); err != nil {
			return nil, err
		}
		if owner.Valid {
			l.Owner = owner.String
		}
		var parseErr error
		l.ExpiresAt, parseErr = time.Parse(timeLayout, expStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse lease expires_at for %q: %w", l.Key, parseErr)
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

// ---------------------------------------------------------------------------
// Subscribers
// ---------------------------------------------------------------------------

// GetSubscriber returns the subscriber record, or nil if unknown. The
// balance blob is opaque here; pkg/crdt owns its meaning.
func (s *Store) GetSubscriber(imsi string) (*model.Subscriber, error) {
	var sub model.Subscriber
	var balance, updStr string
	err := s.db.QueryRow(
		`SELECT imsi, balance, updated_at FROM subscribers WHERE imsi = ?`, imsi,
	).Scan(&sub.IMSI, &balance, &updStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.Balance = []byte(balance)
	sub.UpdatedAt, err = time.Parse(timeLayout, updStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for subscriber %s: %w", imsi, err)
	}
	return &sub, nil
}

// PutSubscriberBalance stores the serialized balance state for a
// subscriber, creating the record on first write.
func (s *Store) PutSubscriberBalance(imsi string, balance []byte) error {
	now, err := s.clk.Now()
	if err != nil {
		return err
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO subscribers (imsi, balance, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(imsi) DO UPDATE SET
			   balance = excluded.balance,
			   updated_at = excluded.updated_at`,
			imsi, string(balance), now.Format(timeLayout),
		)
		return err
	})
}

// ListSubscribers returns all locally-known subscribers ordered by IMSI.
func (s *Store) ListSubscribers() ([]model.Subscriber, error) {
	rows, err := s.db.Query(
		`SELECT imsi, balance, updated_at FROM subscribers ORDER BY imsi`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var sub model.Subscriber
		var balance, updStr string
		if err := rows.Scan(&sub.IMSI, &balance, &updStr); err != nil {
			return nil, err
		}
		sub.Balance = []byte(balance)
		var parseErr error
		sub.UpdatedAt, parseErr = time.Parse(timeLayout, updStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse updated_at for subscriber %s: %w", sub.IMSI, parseErr)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
