package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"

	_ "modernc.org/sqlite"
)

// SQLiteArchive persists events and custody entries in an embedded
// sqlite database. The default deployment target.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the archive database at dsn and runs
// migrations.
func OpenSQLite(dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return NewSQLiteArchive(db)
}

// NewSQLiteArchive wraps an existing connection and runs migrations.
func NewSQLiteArchive(db *sql.DB) (*SQLiteArchive, error) {
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		sequence INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL,
		actor TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		fields JSON
	);
	CREATE TABLE IF NOT EXISTS custody_entries (
		evidence_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		handler TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		location TEXT,
		note TEXT,
		context JSON,
		prev_token TEXT NOT NULL,
		token TEXT NOT NULL,
		PRIMARY KEY (evidence_id, sequence)
	);`
	_, err := a.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

func (a *SQLiteArchive) SaveEvent(ctx context.Context, e events.Event) error {
	fieldsJSON, _ := json.Marshal(e.Fields)
	query := `INSERT INTO events (sequence, event_id, type, subject, actor, timestamp, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, query,
		e.Sequence, e.ID, string(e.Type), e.Subject, e.Actor,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", e.Sequence, err)
	}
	return nil
}

func (a *SQLiteArchive) SaveCustodyEntry(ctx context.Context, evidenceID uint64, entry custody.Entry) error {
	ctxJSON, _ := json.Marshal(entry.Context)
	query := `INSERT INTO custody_entries (evidence_id, sequence, handler, action, timestamp, location, note, context, prev_token, token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := a.db.ExecContext(ctx, query,
		evidenceID, entry.Sequence, entry.Handler, string(entry.Action),
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Location, entry.Note, string(ctxJSON), entry.PrevToken, entry.Token,
	)
	if err != nil {
		return fmt.Errorf("insert custody entry %d/%d: %w", evidenceID, entry.Sequence, err)
	}
	return nil
}

func (a *SQLiteArchive) ListEvents(ctx context.Context, sinceSeq uint64, limit int) ([]events.Event, error) {
	query := `SELECT sequence, event_id, type, subject, actor, timestamp, fields
		FROM events WHERE sequence > ? ORDER BY sequence ASC LIMIT ?`
	rows, err := a.db.QueryContext(ctx, query, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func (a *SQLiteArchive) ListCustody(ctx context.Context, evidenceID uint64) ([]custody.Entry, error) {
	query := `SELECT sequence, handler, action, timestamp, location, note, context, prev_token, token
		FROM custody_entries WHERE evidence_id = ? ORDER BY sequence ASC`
	rows, err := a.db.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCustody(rows)
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var (
			e          events.Event
			typ        string
			ts, fields string
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &typ, &e.Subject, &e.Actor, &ts, &fields); err != nil {
			return nil, err
		}
		e.Type = events.Type(typ)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("event %d: bad timestamp %q: %w", e.Sequence, ts, err)
		}
		e.Timestamp = parsed
		if fields != "" && fields != "null" {
			if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
				return nil, fmt.Errorf("event %d: bad fields: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCustody(rows *sql.Rows) ([]custody.Entry, error) {
	var out []custody.Entry
	for rows.Next() {
		var (
			e           custody.Entry
			action      string
			ts, context string
		)
		if err := rows.Scan(&e.Sequence, &e.Handler, &action, &ts, &e.Location, &e.Note, &context, &e.PrevToken, &e.Token); err != nil {
			return nil, err
		}
		e.Action = custody.Action(action)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("custody entry %d: bad timestamp %q: %w", e.Sequence, ts, err)
		}
		e.Timestamp = parsed
		if context != "" && context != "null" {
			if err := json.Unmarshal([]byte(context), &e.Context); err != nil {
				return nil, fmt.Errorf("custody entry %d: bad context: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
