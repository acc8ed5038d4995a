package purchase

import (
	"context"
	"time"
)

// entitlementKeyPrefix namespaces entitlement keys in the durable store so
// they never collide with other tenants of the same key-value backend.
const entitlementKeyPrefix = "purchased."

// EntitlementKey derives the durable-store key for a product identifier.
func EntitlementKey(id string) string {
	return entitlementKeyPrefix + id
}

// EntitlementStore is the durable boolean storage backing entitlements.
// GetBool returns false for absent keys. Flush forces pending writes to
// durable media; backends that are durable at write time may no-op it.
type EntitlementStore interface {
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	Flush(ctx context.Context) error
}

// CatalogProduct is one valid product returned by a catalog lookup.
type CatalogProduct struct {
	ID      string
	Details Details
}

// CatalogResult is the outcome of a successful catalog lookup. Identifiers
// that were requested but appear in neither slice were silently omitted by
// the storefront; the scheduler re-requests them.
type CatalogResult struct {
	Products   []CatalogProduct
	InvalidIDs []string
}

// CatalogClient looks up catalog metadata for a set of product identifiers.
// Fetch blocks until the lookup completes or ctx is canceled; cancellation of
// a superseded request is expressed through ctx.
type CatalogClient interface {
	Fetch(ctx context.Context, ids []string) (*CatalogResult, error)
}

// TransactionKind enumerates transaction lifecycle event kinds.
type TransactionKind string

const (
	// TxPurchasing signals a purchase attempt has started.
	TxPurchasing TransactionKind = "purchasing"
	// TxPurchased signals a purchase completed successfully.
	TxPurchased TransactionKind = "purchased"
	// TxRestored signals a previously completed purchase was restored;
	// ProductID carries the original identifier.
	TxRestored TransactionKind = "restored"
	// TxFailed signals a purchase attempt failed or was canceled by the user.
	TxFailed TransactionKind = "failed"
)

// Transaction is one lifecycle event delivered by the purchase channel.
// Every delivered transaction must be acknowledged after handling, or the
// channel will redeliver it indefinitely.
type Transaction struct {
	ID        string
	ProductID string
	Kind      TransactionKind

	// Failure is set only for TxFailed events.
	Failure *Failure
}

// Failure describes a failed purchase attempt.
type Failure struct {
	Message  string
	Canceled bool
}

// TransactionObserver receives asynchronous callbacks from a PurchaseChannel.
// The coordinator implements it; implementations of PurchaseChannel must not
// call it concurrently with itself.
type TransactionObserver interface {
	// UpdatedTransactions delivers a batch of lifecycle events.
	UpdatedTransactions(txs []Transaction)
	// RestoreCompleted signals the end of a restore batch.
	RestoreCompleted()
	// RestoreFailed signals a restore batch that could not complete.
	RestoreFailed(err error)
}

// PurchaseChannel is the asynchronous payment submission channel.
type PurchaseChannel interface {
	// Start registers the observer that will receive transaction batches.
	Start(obs TransactionObserver)
	// Submit enqueues a purchase intent carrying the catalog metadata the
	// storefront needs. Fire-and-forget: the outcome arrives as events.
	Submit(ctx context.Context, id string, details Details) error
	// RestoreAll requests redelivery of completed transactions as TxRestored
	// events, terminated by RestoreCompleted or RestoreFailed.
	RestoreAll(ctx context.Context) error
	// Acknowledge confirms a delivered transaction was fully processed.
	Acknowledge(tx Transaction)
}

// CapabilityProbe reports whether the platform can take payments at all.
type CapabilityProbe interface {
	CanMakePayments() bool
}

// DetailsCache optionally persists fetched catalog metadata so a restarted
// process can show prices before the first successful catalog fetch.
type DetailsCache interface {
	Load(ctx context.Context, ids []string) (map[string]CachedDetails, error)
	Store(ctx context.Context, id string, d Details, fetchedAt time.Time) error
}

// CachedDetails is a cache row: the metadata plus when it was fetched.
type CachedDetails struct {
	Details   Details
	FetchedAt time.Time
}
