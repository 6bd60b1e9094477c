package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"

	_ "github.com/lib/pq"
)

// PostgresArchive is the shared-database variant of the archive, for
// deployments where several services read the event history.
type PostgresArchive struct {
	db *sql.DB
}

// OpenPostgres connects to the given postgres URL and runs migrations.
func OpenPostgres(url string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return NewPostgresArchive(db)
}

// NewPostgresArchive wraps an existing connection and runs migrations.
func NewPostgresArchive(db *sql.DB) (*PostgresArchive, error) {
	a := &PostgresArchive{db: db}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *PostgresArchive) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		sequence BIGINT PRIMARY KEY,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL,
		actor TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		fields JSONB
	);
	CREATE TABLE IF NOT EXISTS custody_entries (
		evidence_id BIGINT NOT NULL,
		sequence BIGINT NOT NULL,
		handler TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		location TEXT,
		note TEXT,
		context JSONB,
		prev_token TEXT NOT NULL,
		token TEXT NOT NULL,
		PRIMARY KEY (evidence_id, sequence)
	);`
	_, err := a.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying database.
func (a *PostgresArchive) Close() error {
	return a.db.Close()
}

func (a *PostgresArchive) SaveEvent(ctx context.Context, e events.Event) error {
	fieldsJSON, _ := json.Marshal(e.Fields)
	query := `INSERT INTO events (sequence, event_id, type, subject, actor, timestamp, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := a.db.ExecContext(ctx, query,
		e.Sequence, e.ID, string(e.Type), e.Subject, e.Actor, e.Timestamp.UTC(), string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", e.Sequence, err)
	}
	return nil
}

func (a *PostgresArchive) SaveCustodyEntry(ctx context.Context, evidenceID uint64, entry custody.Entry) error {
	ctxJSON, _ := json.Marshal(entry.Context)
	query := `INSERT INTO custody_entries (evidence_id, sequence, handler, action, timestamp, location, note, context, prev_token, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := a.db.ExecContext(ctx, query,
		evidenceID, entry.Sequence, entry.Handler, string(entry.Action), entry.Timestamp.UTC(),
		entry.Location, entry.Note, string(ctxJSON), entry.PrevToken, entry.Token,
	)
	if err != nil {
		return fmt.Errorf("insert custody entry %d/%d: %w", evidenceID, entry.Sequence, err)
	}
	return nil
}

func (a *PostgresArchive) ListEvents(ctx context.Context, sinceSeq uint64, limit int) ([]events.Event, error) {
	query := `SELECT sequence, event_id, type, subject, actor, timestamp, fields
		FROM events WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`
	rows, err := a.db.QueryContext(ctx, query, sinceSeq, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEventsPG(rows)
}

func (a *PostgresArchive) ListCustody(ctx context.Context, evidenceID uint64) ([]custody.Entry, error) {
	query := `SELECT sequence, handler, action, timestamp, location, note, context, prev_token, token
		FROM custody_entries WHERE evidence_id = $1 ORDER BY sequence ASC`
	rows, err := a.db.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCustodyPG(rows)
}

func scanEventsPG(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var (
			e      events.Event
			typ    string
			fields string
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &typ, &e.Subject, &e.Actor, &e.Timestamp, &fields); err != nil {
			return nil, err
		}
		e.Type = events.Type(typ)
		if fields != "" && fields != "null" {
			if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
				return nil, fmt.Errorf("event %d: bad fields: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCustodyPG(rows *sql.Rows) ([]custody.Entry, error) {
	var out []custody.Entry
	for rows.Next() {
		var (
			e       custody.Entry
			action  string
			context string
		)
		if err := rows.Scan(&e.Sequence, &e.Handler, &action, &e.Timestamp, &e.Location, &e.Note, &context, &e.PrevToken, &e.Token); err != nil {
			return nil, err
		}
		e.Action = custody.Action(action)
		if context != "" && context != "null" {
			if err := json.Unmarshal([]byte(context), &e.Context); err != nil {
				return nil, fmt.Errorf("custody entry %d: bad context: %w", e.Sequence, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
