package purchase

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the coordinator's counters. A nil *Metrics disables
// instrumentation; every add method is nil-safe.
type Metrics struct {
	catalogFetches      metric.Int64Counter
	catalogRetries      metric.Int64Counter
	purchasesCompleted  metric.Int64Counter
	transactionFailures metric.Int64Counter
}

// NewMetrics registers the coordinator's counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.catalogFetches, err = meter.Int64Counter("purchasekit.catalog.fetches",
		metric.WithDescription("Catalog requests issued"),
	); err != nil {
		return nil, errors.Wrap(err, "catalog fetches counter")
	}
	if m.catalogRetries, err = meter.Int64Counter("purchasekit.catalog.retries",
		metric.WithDescription("Catalog requests retried after transport failure"),
	); err != nil {
		return nil, errors.Wrap(err, "catalog retries counter")
	}
	if m.purchasesCompleted, err = meter.Int64Counter("purchasekit.purchases.completed",
		metric.WithDescription("Purchases or restores that reached the purchased state"),
	); err != nil {
		return nil, errors.Wrap(err, "purchases completed counter")
	}
	if m.transactionFailures, err = meter.Int64Counter("purchasekit.transactions.failures",
		metric.WithDescription("Non-cancellation transaction failures surfaced"),
	); err != nil {
		return nil, errors.Wrap(err, "transaction failures counter")
	}
	return &m, nil
}

func (m *Metrics) addCatalogFetch(ctx context.Context) {
	if m == nil {
		return
	}
	m.catalogFetches.Add(ctx, 1)
}

func (m *Metrics) addCatalogRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.catalogRetries.Add(ctx, 1)
}

func (m *Metrics) addPurchaseCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.purchasesCompleted.Add(ctx, 1)
}

func (m *Metrics) addTransactionFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.transactionFailures.Add(ctx, 1)
}
