package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
)

type stubArchive struct {
	events  []events.Event
	entries []custody.Entry
	fail    bool
}

func (s *stubArchive) SaveEvent(_ context.Context, e events.Event) error {
	if s.fail {
		return errors.New("boom")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *stubArchive) SaveCustodyEntry(_ context.Context, _ uint64, e custody.Entry) error {
	if s.fail {
		return errors.New("boom")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubArchive) ListEvents(context.Context, uint64, int) ([]events.Event, error) {
	return s.events, nil
}

func (s *stubArchive) ListCustody(context.Context, uint64) ([]custody.Entry, error) {
	return s.entries, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventHandlerMirrorsPublishedEvents(t *testing.T) {
	arch := &stubArchive{}
	bus := events.NewBus()
	bus.Subscribe(EventHandler(arch, discard()))

	bus.Publish(events.CaseFiled, "case/1", "counsel-1", nil)
	bus.Publish(events.CaseSettled, "case/1", "counsel-1", nil)

	assert.Len(t, arch.events, 2)
	assert.Equal(t, uint64(1), arch.events[0].Sequence)
}

func TestEventHandlerSwallowsArchiveFailure(t *testing.T) {
	arch := &stubArchive{fail: true}
	bus := events.NewBus()
	bus.Subscribe(EventHandler(arch, discard()))

	// Publish must not panic even when the archive rejects the write.
	ev := bus.Publish(events.CaseFiled, "case/1", "counsel-1", nil)
	assert.Equal(t, uint64(1), ev.Sequence)
	assert.Empty(t, arch.events)
}

func TestCustodyHandlerMirrorsEntries(t *testing.T) {
	arch := &stubArchive{}
	log := custody.NewLog()
	log.OnAppend(CustodyHandler(arch, discard()))

	_, err := log.Append(1, "counsel-1", custody.ActionSubmitted, "", "", nil)
	assert.NoError(t, err)
	assert.Len(t, arch.entries, 1)
	assert.Equal(t, "genesis", arch.entries[0].PrevToken)
}
