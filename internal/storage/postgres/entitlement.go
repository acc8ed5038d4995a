package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/purchasekit/internal/purchase"
)

var _ purchase.EntitlementStore = (*EntitlementStore)(nil)

// EntitlementStore implements purchase.EntitlementStore backed by PostgreSQL.
type EntitlementStore struct {
	pool *pgxpool.Pool
}

// NewEntitlementStore returns an EntitlementStore that uses the given pool.
func NewEntitlementStore(pool *pgxpool.Pool) *EntitlementStore {
	return &EntitlementStore{pool: pool}
}

// GetBool reads the stored value for key. Absent keys read false.
func (s *EntitlementStore) GetBool(ctx context.Context, key string) (bool, error) {
	var value bool
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM entitlements WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read entitlement %q", key)
	}
	return value, nil
}

// SetBool upserts the value for key.
func (s *EntitlementStore) SetBool(ctx context.Context, key string, value bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlements (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return errors.Wrapf(err, "write entitlement %q", key)
	}
	return nil
}

// Flush is a no-op: PostgreSQL writes are durable at commit.
func (s *EntitlementStore) Flush(_ context.Context) error {
	return nil
}
