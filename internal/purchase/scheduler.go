package purchase

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

// The catalog scheduler: decides when a fetch is warranted, coalesces every
// identifier needing metadata into one in-flight request, supersedes (cancels)
// the previous request instead of queuing, and retries transport failures by
// rescheduling immediately. Retrying is otherwise driven by subsequent
// Register calls, so a sustained outage converges as soon as the storefront
// recovers.

// scheduleLocked evaluates the whole registry and issues a catalog request if
// any record needs a refresh. Caller holds c.mu.
func (c *Coordinator) scheduleLocked() {
	now := c.now()
	ids := make([]string, 0, len(c.records))
	for id, rec := range c.records {
		if rec.needsRefresh(now, c.ttl) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	slices.Sort(ids)

	// A new need supersedes the in-flight request rather than queuing
	// behind it.
	if c.fetchCancel != nil {
		c.fetchCancel()
	}

	c.fetchSeq++
	seq := c.fetchSeq
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.fetchCancel = cancel

	c.metrics.addCatalogFetch(ctx)
	c.lg.Debug("catalog fetch scheduled",
		zap.Uint64("seq", seq),
		zap.Strings("products", ids),
	)

	go func() {
		res, err := c.catalog.Fetch(ctx, ids)
		c.handleCatalogResult(seq, res, err)
	}()
}

// handleCatalogResult applies a catalog response to the registry. Responses
// from superseded requests are discarded: only the currently tracked sequence
// number may mutate state.
func (c *Coordinator) handleCatalogResult(seq uint64, res *CatalogResult, err error) {
	c.mu.Lock()

	if seq != c.fetchSeq {
		c.mu.Unlock()
		c.lg.Debug("discarding superseded catalog response", zap.Uint64("seq", seq))
		return
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}

	if err != nil {
		// Transient transport failure: no state change, retry immediately.
		c.metrics.addCatalogRetry(c.baseCtx)
		c.lg.Warn("catalog fetch failed, rescheduling", zap.Error(err))
		c.scheduleLocked()
		c.mu.Unlock()
		return
	}

	now := c.now()
	changed := false
	var merged []CatalogProduct
	for _, p := range res.Products {
		rec, ok := c.records[p.ID]
		if !ok {
			continue
		}
		if rec.applyDetails(p.Details, now) {
			changed = true
			merged = append(merged, p)
		}
	}
	for _, id := range res.InvalidIDs {
		rec, ok := c.records[id]
		if !ok {
			continue
		}
		if rec.markInvalid() {
			changed = true
			c.lg.Info("catalog reports invalid product", zap.String("product", id))
		}
	}

	// Partial responses silently omit identifiers; re-evaluate so they are
	// requested again.
	c.scheduleLocked()
	c.mu.Unlock()

	c.persistDetails(merged, now)
	if changed {
		c.changed.Emit(struct{}{})
	}
}

// persistDetails writes merged metadata to the optional details cache.
// Cache errors never fail the merge.
func (c *Coordinator) persistDetails(merged []CatalogProduct, now time.Time) {
	if c.cache == nil {
		return
	}
	for _, p := range merged {
		if err := c.cache.Store(c.baseCtx, p.ID, p.Details, now); err != nil {
			c.lg.Warn("persist details cache",
				zap.String("product", p.ID), zap.Error(err))
		}
	}
}
