// Package sandbox provides an in-process purchase channel for development and
// testing. Submissions are approved (or declined, per configuration)
// asynchronously, mimicking the event flow of a real storefront channel.
package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/purchasekit/internal/purchase"
)

// Config controls the sandbox channel's behavior.
type Config struct {
	// Latency is the delay before each event batch is delivered.
	Latency time.Duration
	// Declines maps product identifiers to the failure their submissions
	// produce instead of completing.
	Declines map[string]purchase.Failure
	// DenyPayments makes CanMakePayments report false.
	DenyPayments bool
	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
}

// Channel is a sandbox purchase channel. It delivers a Purchasing event
// followed by a Purchased (or Failed) event for every submission, and replays
// acknowledged completions on RestoreAll. Unlike a real channel it does not
// redeliver unacknowledged events.
type Channel struct {
	latency  time.Duration
	declines map[string]purchase.Failure
	canPay   bool
	lg       *zap.Logger

	mu        sync.Mutex
	obs       purchase.TransactionObserver
	completed []string
	acked     map[string]int

	// deliverMu serializes observer callbacks.
	deliverMu sync.Mutex
}

var (
	_ purchase.PurchaseChannel = (*Channel)(nil)
	_ purchase.CapabilityProbe = (*Channel)(nil)
)

// ErrNotStarted is returned when submitting before Start.
var ErrNotStarted = errors.New("sandbox channel not started")

// New creates a sandbox Channel.
func New(cfg Config) *Channel {
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Channel{
		latency:  cfg.Latency,
		declines: cfg.Declines,
		canPay:   !cfg.DenyPayments,
		lg:       lg,
		acked:    make(map[string]int),
	}
}

// Start registers the observer.
func (c *Channel) Start(obs purchase.TransactionObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = obs
}

// Submit enqueues a purchase intent. The Purchasing event and the outcome
// event are delivered asynchronously.
func (c *Channel) Submit(_ context.Context, id string, details purchase.Details) error {
	c.mu.Lock()
	obs := c.obs
	failure, declined := c.declines[id]
	c.mu.Unlock()

	if obs == nil {
		return ErrNotStarted
	}

	c.lg.Debug("sandbox purchase submitted",
		zap.String("product", id),
		zap.String("price", details.Price.String()),
	)

	go func() {
		c.sleep()
		c.deliver(obs, []purchase.Transaction{{
			ID:        uuid.NewString(),
			ProductID: id,
			Kind:      purchase.TxPurchasing,
		}})

		c.sleep()
		if declined {
			f := failure
			c.deliver(obs, []purchase.Transaction{{
				ID:        uuid.NewString(),
				ProductID: id,
				Kind:      purchase.TxFailed,
				Failure:   &f,
			}})
			return
		}
		c.deliver(obs, []purchase.Transaction{{
			ID:        uuid.NewString(),
			ProductID: id,
			Kind:      purchase.TxPurchased,
		}})
	}()

	return nil
}

// RestoreAll replays every acknowledged completion as a TxRestored event and
// signals restore completion.
func (c *Channel) RestoreAll(_ context.Context) error {
	c.mu.Lock()
	obs := c.obs
	ids := make([]string, len(c.completed))
	copy(ids, c.completed)
	c.mu.Unlock()

	if obs == nil {
		return ErrNotStarted
	}

	go func() {
		c.sleep()
		txs := make([]purchase.Transaction, 0, len(ids))
		for _, id := range ids {
			txs = append(txs, purchase.Transaction{
				ID:        uuid.NewString(),
				ProductID: id,
				Kind:      purchase.TxRestored,
			})
		}
		if len(txs) > 0 {
			c.deliver(obs, txs)
		}
		c.deliverMu.Lock()
		obs.RestoreCompleted()
		c.deliverMu.Unlock()
	}()

	return nil
}

// Acknowledge records the acknowledgment. Acknowledged completions become
// restorable.
func (c *Channel) Acknowledge(tx purchase.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked[tx.ID]++
	if tx.Kind == purchase.TxPurchased {
		c.completed = append(c.completed, tx.ProductID)
	}
}

// CanMakePayments reports the configured capability.
func (c *Channel) CanMakePayments() bool {
	return c.canPay
}

// AckCount returns how many times the given event was acknowledged.
func (c *Channel) AckCount(eventID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked[eventID]
}

func (c *Channel) deliver(obs purchase.TransactionObserver, txs []purchase.Transaction) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	obs.UpdatedTransactions(txs)
}

func (c *Channel) sleep() {
	if c.latency > 0 {
		time.Sleep(c.latency)
	}
}
