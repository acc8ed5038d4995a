package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// State enumerates the lifecycle states of a registered product.
type State string

const (
	// StateUnknown is the initial state: no catalog metadata, not entitled.
	StateUnknown State = "unknown"
	// StateInvalid means the catalog confirmed the identifier does not exist.
	StateInvalid State = "invalid"
	// StateLoaded means catalog metadata is available and no purchase is in flight.
	StateLoaded State = "loaded"
	// StatePurchasing means a purchase attempt is in flight.
	StatePurchasing State = "purchasing"
	// StatePurchased is terminal: the user owns the product.
	StatePurchased State = "purchased"
)

// Details holds the cached catalog metadata for a product.
type Details struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Locale      string
}

// Product is the immutable snapshot of a record returned by queries.
type Product struct {
	ID        string
	State     State
	Details   *Details
	FetchedAt time.Time
	Entitled  bool
}

// record is the internal mutable per-product state. All mutations go through
// the transition methods below; callers hold the registry lock.
type record struct {
	id        string
	state     State
	details   *Details
	fetchedAt time.Time
	entitled  bool
}

func newRecord(id string, entitled bool) *record {
	st := StateUnknown
	if entitled {
		st = StatePurchased
	}
	return &record{id: id, state: st, entitled: entitled}
}

// snapshot returns a copy safe to hand outside the registry lock.
func (r *record) snapshot() Product {
	p := Product{
		ID:        r.id,
		State:     r.state,
		FetchedAt: r.fetchedAt,
		Entitled:  r.entitled,
	}
	if r.details != nil {
		d := *r.details
		p.Details = &d
	}
	return p
}

// applyDetails merges fetched catalog metadata into the record. Unknown
// records become Loaded; Loaded, Purchasing and Purchased records keep their
// state and only refresh the metadata and timestamp. Invalid is terminal for
// catalog purposes and ignores late metadata.
func (r *record) applyDetails(d Details, now time.Time) bool {
	if r.state == StateInvalid {
		return false
	}
	if r.state == StateUnknown {
		r.state = StateLoaded
	}
	r.details = &d
	r.fetchedAt = now
	return true
}

// markInvalid transitions Unknown/Loaded records to Invalid. Purchasing and
// Purchased records are left alone: an in-flight or completed purchase
// outranks a catalog opinion.
func (r *record) markInvalid() bool {
	if r.state != StateUnknown && r.state != StateLoaded {
		return false
	}
	r.state = StateInvalid
	r.details = nil
	return true
}

// beginPurchase moves any non-Purchased record to Purchasing.
func (r *record) beginPurchase() bool {
	if r.state == StatePurchased || r.state == StatePurchasing {
		return false
	}
	r.state = StatePurchasing
	return true
}

// completePurchase moves the record to Purchased and flags entitlement.
// Purchased is absorbing, so re-entry reports no change.
func (r *record) completePurchase() bool {
	if r.state == StatePurchased && r.entitled {
		return false
	}
	r.state = StatePurchased
	r.entitled = true
	return true
}

// failPurchase reverts a Purchasing record to its pre-purchase state: Loaded
// when metadata survived, Unknown otherwise. A failure never lands in Invalid
// or Purchased.
func (r *record) failPurchase() bool {
	if r.state != StatePurchasing {
		return false
	}
	if r.details != nil {
		r.state = StateLoaded
	} else {
		r.state = StateUnknown
	}
	return true
}

// needsRefresh reports whether the record should be included in the next
// catalog fetch: only Unknown and Loaded records qualify, and only when
// metadata is absent or older than the validity window.
func (r *record) needsRefresh(now time.Time, ttl time.Duration) bool {
	if r.state != StateUnknown && r.state != StateLoaded {
		return false
	}
	if r.details == nil {
		return true
	}
	return now.Sub(r.fetchedAt) > ttl
}
