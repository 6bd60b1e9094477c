package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
)

func newSQLiteArchive(t *testing.T) (*SQLiteArchive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	a, err := NewSQLiteArchive(db)
	require.NoError(t, err)
	return a, mock
}

func TestSQLiteSaveEvent(t *testing.T) {
	a, mock := newSQLiteArchive(t)

	ts := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(uint64(7), "ev-7", "evidence.submitted", "evidence/3", "counsel-1",
			ts.Format(time.RFC3339Nano), `{"evidence_id":3}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := a.SaveEvent(context.Background(), events.Event{
		ID:        "ev-7",
		Sequence:  7,
		Type:      events.EvidenceSubmitted,
		Subject:   "evidence/3",
		Actor:     "counsel-1",
		Timestamp: ts,
		Fields:    map[string]interface{}{"evidence_id": 3},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteSaveCustodyEntry(t *testing.T) {
	a, mock := newSQLiteArchive(t)

	ts := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO custody_entries")).
		WithArgs(uint64(3), uint64(1), "counsel-1", "submitted",
			ts.Format(time.RFC3339Nano), "", "", "null", "genesis", "sha256:abc").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := a.SaveCustodyEntry(context.Background(), 3, custody.Entry{
		Sequence:  1,
		Handler:   "counsel-1",
		Action:    custody.ActionSubmitted,
		Timestamp: ts,
		PrevToken: "genesis",
		Token:     "sha256:abc",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteListEvents(t *testing.T) {
	a, mock := newSQLiteArchive(t)

	ts := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"sequence", "event_id", "type", "subject", "actor", "timestamp", "fields"}).
		AddRow(uint64(5), "ev-5", "case.filed", "case/1", "counsel-1", ts.Format(time.RFC3339Nano), `{"number":"C-1"}`).
		AddRow(uint64(6), "ev-6", "case.party-added", "case/1", "counsel-1", ts.Format(time.RFC3339Nano), "null")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence, event_id, type, subject, actor, timestamp, fields")).
		WithArgs(uint64(4), 100).
		WillReturnRows(rows)

	got, err := a.ListEvents(context.Background(), 4, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.CaseFiled, got[0].Type)
	assert.Equal(t, "C-1", got[0].Fields["number"])
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Nil(t, got[1].Fields)
}

func TestSQLiteListCustody(t *testing.T) {
	a, mock := newSQLiteArchive(t)

	ts := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"sequence", "handler", "action", "timestamp", "location", "note", "context", "prev_token", "token"}).
		AddRow(uint64(1), "counsel-1", "submitted", ts.Format(time.RFC3339Nano), "", "", "null", "genesis", "sha256:abc").
		AddRow(uint64(2), "judge-1", "sealed", ts.Format(time.RFC3339Nano), "", "", `{"duration":"2h"}`, "sha256:abc", "sha256:def")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence, handler, action, timestamp, location, note, context, prev_token, token")).
		WithArgs(uint64(3)).
		WillReturnRows(rows)

	got, err := a.ListCustody(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, custody.ActionSealed, got[1].Action)
	assert.Equal(t, "2h", got[1].Context["duration"])
	assert.Equal(t, got[0].Token, got[1].PrevToken)
}
