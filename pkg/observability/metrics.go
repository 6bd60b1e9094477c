package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/docket-systems/custodia/pkg/events"
)

// DomainMetrics counts the custody-engine events that matter
// operationally: submissions, seals, case filings, evidence links, and
// cascade grant volume. It subscribes to the event bus.
type DomainMetrics struct {
	submissions   metric.Int64Counter
	seals         metric.Int64Counter
	caseFilings   metric.Int64Counter
	evidenceLinks metric.Int64Counter
	cascadeGrants metric.Int64Counter
}

// NewDomainMetrics registers the domain instruments on the meter.
func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	m := &DomainMetrics{}
	var err error

	if m.submissions, err = meter.Int64Counter("custodia.evidence.submissions",
		metric.WithDescription("Evidence items submitted"),
		metric.WithUnit("{item}"),
	); err != nil {
		return nil, err
	}
	if m.seals, err = meter.Int64Counter("custodia.evidence.seals",
		metric.WithDescription("Seal windows opened"),
		metric.WithUnit("{seal}"),
	); err != nil {
		return nil, err
	}
	if m.caseFilings, err = meter.Int64Counter("custodia.cases.filed",
		metric.WithDescription("Cases filed"),
		metric.WithUnit("{case}"),
	); err != nil {
		return nil, err
	}
	if m.evidenceLinks, err = meter.Int64Counter("custodia.cases.evidence_links",
		metric.WithDescription("Evidence items linked to cases"),
		metric.WithUnit("{link}"),
	); err != nil {
		return nil, err
	}
	if m.cascadeGrants, err = meter.Int64Counter("custodia.access.cascade_grants",
		metric.WithDescription("Read grants written by the authorization cascade"),
		metric.WithUnit("{grant}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler returns the bus subscriber feeding the counters.
func (m *DomainMetrics) Handler() events.Handler {
	return func(e events.Event) {
		ctx := context.Background()
		actor := attribute.String("actor", e.Actor)
		switch e.Type {
		case events.EvidenceSubmitted:
			m.submissions.Add(ctx, 1, metric.WithAttributes(actor))
		case events.EvidenceSealed:
			m.seals.Add(ctx, 1, metric.WithAttributes(actor))
		case events.CaseFiled:
			m.caseFilings.Add(ctx, 1, metric.WithAttributes(actor))
		case events.CaseEvidenceLink:
			m.evidenceLinks.Add(ctx, 1, metric.WithAttributes(actor))
			if n, ok := e.Fields["cascade_grants"].(int); ok && n > 0 {
				m.cascadeGrants.Add(ctx, int64(n), metric.WithAttributes(
					attribute.String("subject", e.Subject)))
			}
		}
	}
}
