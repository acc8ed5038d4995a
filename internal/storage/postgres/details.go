package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/purchasekit/internal/purchase"
)

var _ purchase.DetailsCache = (*DetailsCache)(nil)

// DetailsCache implements purchase.DetailsCache backed by PostgreSQL. It lets
// a restarted process show catalog metadata before the first successful
// fetch.
type DetailsCache struct {
	pool *pgxpool.Pool
}

// NewDetailsCache returns a DetailsCache that uses the given pool.
func NewDetailsCache(pool *pgxpool.Pool) *DetailsCache {
	return &DetailsCache{pool: pool}
}

// Load reads cached metadata for the given identifiers. Identifiers without a
// cache row are simply absent from the result.
func (c *DetailsCache) Load(ctx context.Context, ids []string) (map[string]purchase.CachedDetails, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, title, description, price, locale, fetched_at
		 FROM product_details
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query product details")
	}
	defer rows.Close()

	out := make(map[string]purchase.CachedDetails, len(ids))
	for rows.Next() {
		var (
			id  string
			row purchase.CachedDetails
		)
		if err := rows.Scan(
			&id,
			&row.Details.Title,
			&row.Details.Description,
			&row.Details.Price,
			&row.Details.Locale,
			&row.FetchedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan product details")
		}
		out[id] = row
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate product details")
	}
	return out, nil
}

// Store upserts the metadata for one product.
func (c *DetailsCache) Store(ctx context.Context, id string, d purchase.Details, fetchedAt time.Time) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO product_details (id, title, description, price, locale, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			locale = EXCLUDED.locale,
			fetched_at = EXCLUDED.fetched_at`,
		id, d.Title, d.Description, d.Price, d.Locale, fetchedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "store product details %q", id)
	}
	return nil
}
