// Package purchase implements a client-side purchase-state manager.
//
// It reconciles three asynchronous, unreliable sources (remote catalog
// lookup, a transaction event stream, locally persisted entitlements) into
// one consistent per-product view: what can be bought, and what is
// already owned. The Coordinator is the façade; the catalog scheduler and
// the transaction reducer mutate the shared registry behind a single lock.
package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/purchasekit/pkg/notify"
)

// DefaultRefreshTTL is how long fetched catalog metadata stays valid before a
// record becomes eligible for refetch.
const DefaultRefreshTTL = 24 * time.Hour

// Estimated volume of distinct transaction events per process run, sized for
// the duplicate-delivery detector.
const (
	seenTxCapacity = 1_000_000
	seenTxFPR      = 0.001
)

var (
	// ErrNotRegistered is returned by Purchase for an unregistered identifier.
	ErrNotRegistered = errors.New("product not registered")
	// ErrNoDetails is returned by Purchase when catalog metadata has not been
	// loaded yet; submitting without it is a caller error.
	ErrNoDetails = errors.New("product details not loaded")
)

// Config wires a Coordinator's collaborators. Store, Catalog and Channel are
// required; the rest are optional.
type Config struct {
	Store   EntitlementStore
	Catalog CatalogClient
	Channel PurchaseChannel

	// Caps reports platform payment capability. When nil, payments are
	// assumed available.
	Caps CapabilityProbe
	// Cache persists catalog metadata across restarts. Optional.
	Cache DetailsCache
	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
	// Metrics enables counters when non-nil.
	Metrics *Metrics
	// RefreshTTL overrides DefaultRefreshTTL when positive.
	RefreshTTL time.Duration
}

// Coordinator owns the product registry and composes the catalog scheduler
// and the transaction reducer. All public methods are safe for concurrent
// use; registry mutations happen only under mu, on the two asynchronous
// callback paths (catalog responses and transaction batches).
type Coordinator struct {
	store   EntitlementStore
	catalog CatalogClient
	channel PurchaseChannel
	caps    CapabilityProbe
	cache   DetailsCache
	lg      *zap.Logger
	metrics *Metrics
	ttl     time.Duration
	now     func() time.Time

	changed  notify.Hub[struct{}]
	txFailed notify.Hub[string]

	mu      sync.Mutex
	records map[string]*record
	seenTx  *bloom.BloomFilter

	// In-flight catalog request bookkeeping. fetchSeq tags the current
	// request; a response carrying a stale tag was superseded and is dropped.
	fetchSeq    uint64
	fetchCancel context.CancelFunc

	// baseCtx parents in-flight catalog fetches. Set by Start.
	baseCtx context.Context
}

// New validates cfg and builds a Coordinator. Call Start before registering
// products.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("entitlement store is required")
	case cfg.Catalog == nil:
		return nil, errors.New("catalog client is required")
	case cfg.Channel == nil:
		return nil, errors.New("purchase channel is required")
	}

	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	ttl := cfg.RefreshTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}

	return &Coordinator{
		store:   cfg.Store,
		catalog: cfg.Catalog,
		channel: cfg.Channel,
		caps:    cfg.Caps,
		cache:   cfg.Cache,
		lg:      lg,
		metrics: cfg.Metrics,
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]*record),
		seenTx:  bloom.NewWithEstimates(seenTxCapacity, seenTxFPR),
		baseCtx: context.Background(),
	}, nil
}

// Start attaches the coordinator to the purchase channel's event stream and
// parents future catalog fetches on ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()
	c.channel.Start(c)
}

// Close cancels any in-flight catalog request and discards its eventual
// response.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchSeq++
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
}

// Register idempotently creates records for unseen identifiers, seeding each
// from the durable entitlement store (Purchased when previously entitled) and,
// when a details cache is configured, from persisted catalog metadata. It then
// lets the scheduler decide whether a catalog fetch is warranted.
// Fire-and-forget: results arrive via change notifications.
func (c *Coordinator) Register(ctx context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, id := range ids {
		if _, ok := c.records[id]; ok {
			continue
		}
		entitled, err := c.store.GetBool(ctx, EntitlementKey(id))
		if err != nil {
			c.lg.Error("read entitlement, assuming not entitled",
				zap.String("product", id), zap.Error(err))
			entitled = false
		}
		c.records[id] = newRecord(id, entitled)
		fresh = append(fresh, id)
	}

	c.seedFromCacheLocked(ctx, fresh)
	c.scheduleLocked()
}

// seedFromCacheLocked loads persisted catalog metadata for freshly created
// records. A stale cache row still seeds the record; the scheduler's validity
// window decides whether it is refetched.
func (c *Coordinator) seedFromCacheLocked(ctx context.Context, ids []string) {
	if c.cache == nil || len(ids) == 0 {
		return
	}
	rows, err := c.cache.Load(ctx, ids)
	if err != nil {
		c.lg.Warn("load details cache", zap.Error(err))
		return
	}
	for id, row := range rows {
		rec, ok := c.records[id]
		if !ok || rec.state != StateUnknown {
			continue
		}
		rec.applyDetails(row.Details, row.FetchedAt)
	}
}

// Product returns an immutable snapshot of the record, if registered.
func (c *Coordinator) Product(id string) (Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return Product{}, false
	}
	return rec.snapshot(), true
}

// Products returns snapshots of every registered record.
func (c *Coordinator) Products() []Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Product, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.snapshot())
	}
	return out
}

// IsPurchased reports whether the identifier is owned. Unregistered
// identifiers report false.
func (c *Coordinator) IsPurchased(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	return ok && rec.state == StatePurchased
}

// Purchase submits a purchase intent for a registered, loaded product. It
// never mutates state itself: the record moves to Purchasing only when the
// channel delivers the corresponding event, which avoids a stuck Purchasing
// state should the channel never start the transaction.
func (c *Coordinator) Purchase(ctx context.Context, id string) error {
	c.mu.Lock()
	rec, ok := c.records[id]
	var details *Details
	if ok && rec.details != nil {
		d := *rec.details
		details = &d
	}
	c.mu.Unlock()

	if !ok {
		return ErrNotRegistered
	}
	if details == nil {
		return ErrNoDetails
	}
	if err := c.channel.Submit(ctx, id, *details); err != nil {
		return errors.Wrap(err, "submit purchase")
	}
	return nil
}

// RestorePurchases asks the channel to replay completed transactions. All
// resulting updates flow through the transaction reducer.
func (c *Coordinator) RestorePurchases(ctx context.Context) error {
	if err := c.channel.RestoreAll(ctx); err != nil {
		return errors.Wrap(err, "restore purchases")
	}
	return nil
}

// CanMakePayments reports the platform payment capability.
func (c *Coordinator) CanMakePayments() bool {
	if c.caps == nil {
		return true
	}
	return c.caps.CanMakePayments()
}

// OnChange registers a listener fired once per batch of record mutations.
// Listeners run synchronously on the callback path and must not block.
func (c *Coordinator) OnChange(fn func()) *notify.Handle {
	return c.changed.Subscribe(func(struct{}) { fn() })
}

// OnTransactionFailure registers a listener fired once per non-cancellation
// transaction failure with a human-readable message.
func (c *Coordinator) OnTransactionFailure(fn func(msg string)) *notify.Handle {
	return c.txFailed.Subscribe(fn)
}
