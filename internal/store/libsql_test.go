package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *LibSQLJournal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewLibSQLJournal("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, j.Migrate(context.Background()))
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestLibSQLAppendAssignsSequence(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	require.NoError(t, j.OpenSession(ctx, &Session{ID: sessionID, ServerURL: "http://localhost:5000"}))

	for _, typ := range []string{"generation_started", "generation_succeeded", "analysis_started"} {
		require.NoError(t, j.AppendEvent(ctx, &Event{SessionID: sessionID, Type: typ}))
	}
	other := &Event{SessionID: "other", Type: "generation_started"}
	require.NoError(t, j.AppendEvent(ctx, other))
	assert.Equal(t, int64(1), other.Sequence)

	events, err := j.Events(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.Equal(t, sessionID, e.SessionID)
	}
	assert.Equal(t, "analysis_started", events[2].Type)

	since, err := j.Events(ctx, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(3), since[0].Sequence)
}

func TestLibSQLPayloadRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"from":"idle","to":"cutting"}`)
	require.NoError(t, j.AppendEvent(ctx, &Event{SessionID: "s", Type: "cutting_state", Payload: payload}))
	require.NoError(t, j.AppendEvent(ctx, &Event{SessionID: "s", Type: "toast_shown"}))

	events, err := j.EventsByType(ctx, "s", "cutting_state")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, string(payload), string(events[0].Payload))
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestLibSQLMigrateIsIdempotent(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.Migrate(context.Background()))
}

func TestLibSQLOpenSessionTwice(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.OpenSession(ctx, &Session{ID: "dup"}))
	require.NoError(t, j.OpenSession(ctx, &Session{ID: "dup"}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Migrate(ctx))

	var version int
	require.NoError(t, j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestStatementsSkipComments(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a (x INT);\n\n  -- note\nCREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}
