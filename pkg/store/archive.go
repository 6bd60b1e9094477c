// Package store mirrors the in-memory event stream and custody chains
// into a SQL database for durability and offline review. The registries
// stay authoritative; the archive is write-behind, fed by bus and log
// subscriptions, and is queried only by reporting surfaces.
package store

import (
	"context"
	"log/slog"

	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
)

// Archive is the write-behind persistence surface. Both SQL
// implementations satisfy it.
type Archive interface {
	SaveEvent(ctx context.Context, e events.Event) error
	SaveCustodyEntry(ctx context.Context, evidenceID uint64, entry custody.Entry) error
	ListEvents(ctx context.Context, sinceSeq uint64, limit int) ([]events.Event, error)
	ListCustody(ctx context.Context, evidenceID uint64) ([]custody.Entry, error)
}

// EventHandler adapts an Archive into a bus subscriber. Archival errors
// are logged and swallowed; the in-memory stream stays authoritative and
// a failed mirror write must not fail the originating operation.
func EventHandler(a Archive, logger *slog.Logger) events.Handler {
	return func(e events.Event) {
		if err := a.SaveEvent(context.Background(), e); err != nil {
			logger.Error("event archive write failed",
				"sequence", e.Sequence, "type", string(e.Type), "error", err)
		}
	}
}

// CustodyHandler adapts an Archive into a custody log subscriber.
func CustodyHandler(a Archive, logger *slog.Logger) custody.EntryHandler {
	return func(evidenceID uint64, entry custody.Entry) {
		if err := a.SaveCustodyEntry(context.Background(), evidenceID, entry); err != nil {
			logger.Error("custody archive write failed",
				"evidence_id", evidenceID, "sequence", entry.Sequence, "error", err)
		}
	}
}
