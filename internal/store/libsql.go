package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/papercut/pkg/schema"
)

// LibSQLJournal keeps the session journal in an embedded libSQL file so it
// survives the process.
type LibSQLJournal struct {
	db *sql.DB
}

// connPragmas are applied once per open. Some of them return a row.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

const eventColumns = `id, session_id, event_type, payload, timestamp, sequence`

// NewLibSQLJournal opens the database at dsn, a file URI such as
// "file:/var/lib/papercut/journal.db". Call Migrate before use.
func NewLibSQLJournal(dsn string) (*LibSQLJournal, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, storeErr("open journal", err)
	}
	// A single connection serialises writers and keeps sequence allocation race free.
	db.SetMaxOpenConns(1)
	for _, p := range connPragmas {
		var ignored string
		_ = db.QueryRow(p).Scan(&ignored)
	}
	return &LibSQLJournal{db: db}, nil
}

// Migrate applies pending schema migrations.
func (j *LibSQLJournal) Migrate(ctx context.Context) error {
	return runMigrations(ctx, j.db)
}

func (j *LibSQLJournal) Close() error { return j.db.Close() }

func (j *LibSQLJournal) OpenSession(ctx context.Context, sess *Session) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (id, server_url, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, nullStr(sess.ServerURL), timeOrNow(sess.StartedAt),
	)
	if err != nil {
		return storeErr("open session "+sess.ID, err)
	}
	return nil
}

// AppendEvent stores event under the next sequence number of its session
// and fills in ID, Sequence and, when unset, Timestamp.
func (j *LibSQLJournal) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin append", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&event.Sequence); err != nil {
		return storeErr("next sequence", err)
	}
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?)`,
		event.SessionID, event.Type, nullRaw(event.Payload), event.Timestamp, event.Sequence,
	)
	if err != nil {
		return storeErr("insert event", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit event", err)
	}
	return nil
}

func (j *LibSQLJournal) Events(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	return j.query(ctx, `session_id = ? AND sequence > ?`, sessionID, since)
}

func (j *LibSQLJournal) EventsByType(ctx context.Context, sessionID, eventType string) ([]*Event, error) {
	return j.query(ctx, `session_id = ? AND event_type = ?`, sessionID, eventType)
}

func (j *LibSQLJournal) query(ctx context.Context, where string, args ...any) ([]*Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+where+` ORDER BY sequence ASC`, args...)
	if err != nil {
		return nil, storeErr("query events", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, storeErr("scan event", err)
		}
		if payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read events", err)
	}
	return events, nil
}

func storeErr(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var _ Journal = (*LibSQLJournal)(nil)
