package purchase

import (
	"fmt"

	"go.uber.org/zap"
)

// The transaction reducer: maps channel lifecycle events onto record
// transitions. Completion is idempotent, every event is acknowledged exactly
// once after handling (including events for unregistered identifiers, which
// would otherwise be redelivered forever), and a whole batch produces at most
// one aggregate change notification.

var _ TransactionObserver = (*Coordinator)(nil)

// UpdatedTransactions consumes one batch of transaction lifecycle events.
// Called by the purchase channel on its delivery goroutine.
func (c *Coordinator) UpdatedTransactions(txs []Transaction) {
	c.mu.Lock()

	changed := false
	var failures []string
	for _, tx := range txs {
		if tx.ID != "" && c.seenTx.TestAndAddString(tx.ID) {
			// Duplicate delivery is expected from an at-least-once channel;
			// handling below is idempotent regardless.
			c.lg.Debug("duplicate transaction event",
				zap.String("event", tx.ID),
				zap.String("product", tx.ProductID),
			)
		}

		switch tx.Kind {
		case TxPurchasing:
			if c.applyPurchasingLocked(tx) {
				changed = true
			}
		case TxPurchased, TxRestored:
			if c.applyCompletedLocked(tx) {
				changed = true
			}
		case TxFailed:
			txChanged, msg := c.applyFailedLocked(tx)
			if txChanged {
				changed = true
			}
			if msg != "" {
				failures = append(failures, msg)
			}
		default:
			c.lg.Warn("unknown transaction kind",
				zap.String("event", tx.ID),
				zap.String("kind", string(tx.Kind)),
			)
		}

		c.channel.Acknowledge(tx)
	}

	c.mu.Unlock()

	if changed {
		c.changed.Emit(struct{}{})
	}
	for _, msg := range failures {
		c.metrics.addTransactionFailure(c.baseCtx)
		c.txFailed.Emit(msg)
	}
}

func (c *Coordinator) applyPurchasingLocked(tx Transaction) bool {
	rec, ok := c.records[tx.ProductID]
	if !ok {
		c.lg.Debug("purchasing event for unregistered product",
			zap.String("product", tx.ProductID))
		return false
	}
	return rec.beginPurchase()
}

// applyCompletedLocked handles TxPurchased and TxRestored: transition to
// Purchased and persist the entitlement. Re-delivery is a no-op and persists
// nothing. Events for unregistered identifiers are dropped after the caller
// acknowledges them.
func (c *Coordinator) applyCompletedLocked(tx Transaction) bool {
	rec, ok := c.records[tx.ProductID]
	if !ok {
		c.lg.Debug("completed event for unregistered product",
			zap.String("product", tx.ProductID))
		return false
	}
	if !rec.completePurchase() {
		return false
	}

	key := EntitlementKey(tx.ProductID)
	if err := c.store.SetBool(c.baseCtx, key, true); err != nil {
		// Entitlement survives in memory; the durable copy is behind until
		// the next successful persist or restore.
		c.lg.Error("persist entitlement", zap.String("product", tx.ProductID), zap.Error(err))
	} else if err := c.store.Flush(c.baseCtx); err != nil {
		c.lg.Error("flush entitlement store", zap.Error(err))
	}

	c.metrics.addPurchaseCompleted(c.baseCtx)
	c.lg.Info("purchase completed",
		zap.String("product", tx.ProductID),
		zap.String("kind", string(tx.Kind)),
	)
	return true
}

// applyFailedLocked reverts a Purchasing record and, for non-cancellation
// failures, returns the message to surface. User cancellations revert
// silently.
func (c *Coordinator) applyFailedLocked(tx Transaction) (bool, string) {
	changed := false
	if rec, ok := c.records[tx.ProductID]; ok {
		changed = rec.failPurchase()
	}

	if tx.Failure != nil && tx.Failure.Canceled {
		c.lg.Debug("purchase canceled by user", zap.String("product", tx.ProductID))
		return changed, ""
	}

	reason := "unknown error"
	if tx.Failure != nil && tx.Failure.Message != "" {
		reason = tx.Failure.Message
	}
	return changed, fmt.Sprintf("purchase of %q failed: %s", tx.ProductID, reason)
}

// RestoreCompleted signals the end of a restore batch. The per-product state
// already arrived as TxRestored events, so this is informational.
func (c *Coordinator) RestoreCompleted() {
	c.lg.Info("restore completed")
}

// RestoreFailed signals a restore batch that could not complete.
func (c *Coordinator) RestoreFailed(err error) {
	c.lg.Warn("restore failed", zap.Error(err))
}
