package purchase

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetails(title string) Details {
	return Details{
		Title:       title,
		Description: "test product",
		Price:       decimal.RequireFromString("4.99"),
		Locale:      "en_US",
	}
}

func TestNewRecord_SeededFromEntitlement(t *testing.T) {
	r := newRecord("gold", true)
	assert.Equal(t, StatePurchased, r.state)
	assert.True(t, r.entitled)

	r = newRecord("silver", false)
	assert.Equal(t, StateUnknown, r.state)
	assert.False(t, r.entitled)
}

func TestRecord_ApplyDetails(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		state       State
		wantChanged bool
		wantState   State
	}{
		{name: "unknown becomes loaded", state: StateUnknown, wantChanged: true, wantState: StateLoaded},
		{name: "loaded stays loaded", state: StateLoaded, wantChanged: true, wantState: StateLoaded},
		{name: "purchasing keeps state", state: StatePurchasing, wantChanged: true, wantState: StatePurchasing},
		{name: "purchased keeps state", state: StatePurchased, wantChanged: true, wantState: StatePurchased},
		{name: "invalid ignores metadata", state: StateInvalid, wantChanged: false, wantState: StateInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &record{id: "p1", state: tt.state}
			changed := r.applyDetails(testDetails("Widget"), now)

			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantState, r.state)
			if tt.wantChanged {
				require.NotNil(t, r.details)
				assert.Equal(t, "Widget", r.details.Title)
				assert.Equal(t, now, r.fetchedAt)
			}
		})
	}
}

func TestRecord_MarkInvalid(t *testing.T) {
	tests := []struct {
		name        string
		state       State
		wantChanged bool
		wantState   State
	}{
		{name: "unknown becomes invalid", state: StateUnknown, wantChanged: true, wantState: StateInvalid},
		{name: "loaded becomes invalid", state: StateLoaded, wantChanged: true, wantState: StateInvalid},
		{name: "purchasing is untouched", state: StatePurchasing, wantChanged: false, wantState: StatePurchasing},
		{name: "purchased is untouched", state: StatePurchased, wantChanged: false, wantState: StatePurchased},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &record{id: "p1", state: tt.state}
			assert.Equal(t, tt.wantChanged, r.markInvalid())
			assert.Equal(t, tt.wantState, r.state)
		})
	}
}

func TestRecord_BeginPurchase(t *testing.T) {
	for _, from := range []State{StateUnknown, StateInvalid, StateLoaded} {
		r := &record{id: "p1", state: from}
		assert.True(t, r.beginPurchase(), "from %s", from)
		assert.Equal(t, StatePurchasing, r.state)
	}

	r := &record{id: "p1", state: StatePurchased, entitled: true}
	assert.False(t, r.beginPurchase())
	assert.Equal(t, StatePurchased, r.state)
}

func TestRecord_CompletePurchase_Idempotent(t *testing.T) {
	r := &record{id: "p1", state: StatePurchasing}

	assert.True(t, r.completePurchase())
	assert.Equal(t, StatePurchased, r.state)
	assert.True(t, r.entitled)

	// Re-entering Purchased is a no-op.
	assert.False(t, r.completePurchase())
	assert.Equal(t, StatePurchased, r.state)
}

func TestRecord_FailPurchase(t *testing.T) {
	t.Run("with metadata reverts to loaded", func(t *testing.T) {
		d := testDetails("Widget")
		r := &record{id: "p1", state: StatePurchasing, details: &d}
		assert.True(t, r.failPurchase())
		assert.Equal(t, StateLoaded, r.state)
		assert.NotNil(t, r.details)
	})

	t.Run("without metadata reverts to unknown", func(t *testing.T) {
		r := &record{id: "p1", state: StatePurchasing}
		assert.True(t, r.failPurchase())
		assert.Equal(t, StateUnknown, r.state)
	})

	t.Run("non-purchasing states are untouched", func(t *testing.T) {
		for _, from := range []State{StateUnknown, StateInvalid, StateLoaded, StatePurchased} {
			r := &record{id: "p1", state: from}
			assert.False(t, r.failPurchase(), "from %s", from)
			assert.Equal(t, from, r.state)
		}
	})
}

func TestRecord_NeedsRefresh(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour
	d := testDetails("Widget")

	tests := []struct {
		name string
		rec  record
		want bool
	}{
		{name: "unknown without metadata", rec: record{state: StateUnknown}, want: true},
		{name: "loaded fresh", rec: record{state: StateLoaded, details: &d, fetchedAt: now.Add(-time.Hour)}, want: false},
		{name: "loaded stale", rec: record{state: StateLoaded, details: &d, fetchedAt: now.Add(-25 * time.Hour)}, want: true},
		{name: "loaded exactly at window edge", rec: record{state: StateLoaded, details: &d, fetchedAt: now.Add(-ttl)}, want: false},
		{name: "invalid never refreshes", rec: record{state: StateInvalid}, want: false},
		{name: "purchased never refreshes", rec: record{state: StatePurchased, entitled: true}, want: false},
		{name: "purchasing never refreshes", rec: record{state: StatePurchasing, details: &d}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.needsRefresh(now, ttl))
		})
	}
}

func TestRecord_Snapshot_CopiesDetails(t *testing.T) {
	d := testDetails("Widget")
	r := &record{id: "p1", state: StateLoaded, details: &d, fetchedAt: time.Now()}

	snap := r.snapshot()
	require.NotNil(t, snap.Details)
	snap.Details.Title = "mutated"

	assert.Equal(t, "Widget", r.details.Title)
}
