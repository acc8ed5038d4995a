// Package redis implements the purchase engine's entitlement store on Redis,
// for deployments where the durable key-value backend is a Redis server with
// persistence enabled.
package redis

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/purchasekit/internal/purchase"
)

var _ purchase.EntitlementStore = (*EntitlementStore)(nil)

// EntitlementStore implements purchase.EntitlementStore backed by Redis.
// Durability follows the server's persistence policy (AOF/RDB).
type EntitlementStore struct {
	client redis.UniversalClient
}

// NewEntitlementStore returns an EntitlementStore using the given client.
func NewEntitlementStore(client redis.UniversalClient) *EntitlementStore {
	return &EntitlementStore{client: client}
}

// GetBool reads the stored value for key. Absent keys read false.
func (s *EntitlementStore) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read entitlement %q", key)
	}
	return v == "1", nil
}

// SetBool writes the value for key without expiry.
func (s *EntitlementStore) SetBool(ctx context.Context, key string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	if err := s.client.Set(ctx, key, v, 0).Err(); err != nil {
		return errors.Wrapf(err, "write entitlement %q", key)
	}
	return nil
}

// Flush is a no-op: persistence timing is the server's policy.
func (s *EntitlementStore) Flush(_ context.Context) error {
	return nil
}
