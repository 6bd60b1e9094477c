package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docket-systems/custodia/pkg/events"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "custodia", config.ServiceName)
	require.Equal(t, "1.0.0", config.ServiceVersion)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// The provider must be usable as a no-op when disabled.
	ctx, done := p.TrackOperation(context.Background(), "evidence.submit",
		attribute.String("actor", "counsel-1"))
	require.NotNil(t, ctx)
	done(nil)

	require.NotPanics(t, func() {
		_, finish := p.TrackOperation(context.Background(), "evidence.seal")
		finish(errors.New("boom"))
	})

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDisabledProviderAccessors(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	_, span := p.StartSpan(context.Background(), "test")
	span.End()
}

func TestDomainMetricsHandler(t *testing.T) {
	m, err := NewDomainMetrics(otel.Meter("custodia.test"))
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Subscribe(m.Handler())

	require.NotPanics(t, func() {
		bus.Publish(events.EvidenceSubmitted, "evidence/1", "counsel-1", nil)
		bus.Publish(events.EvidenceSealed, "evidence/1", "judge-1", nil)
		bus.Publish(events.CaseFiled, "case/1", "counsel-1", nil)
		bus.Publish(events.CaseEvidenceLink, "case/1", "counsel-1", map[string]interface{}{
			"cascade_grants": 3,
		})
		// Unrelated event types are ignored.
		bus.Publish(events.CaseSettled, "case/1", "counsel-1", nil)
	})
}
