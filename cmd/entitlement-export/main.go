// Command entitlement-export streams every entitlement row to a
// gzip-compressed JSON lines file, for backup or migration between stores.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"

	"github.com/xenking/purchasekit/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outPath     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "entitlements.jsonl.gz", "output file path")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outPath); err != nil {
		slog.Error("entitlement export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("entitlement export completed", slog.String("out", outPath))
}

func run(ctx context.Context, databaseURL, outPath string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", outPath)
	}
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)

	count, err := export(ctx, pool, w)
	if err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush output")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}

	slog.Info("rows exported", slog.Int("count", count))
	return nil
}

// export writes one JSON object per entitlement row.
func export(ctx context.Context, pool *pgxpool.Pool, w *bufio.Writer) (int, error) {
	rows, err := pool.Query(ctx,
		`SELECT key, value, updated_at FROM entitlements ORDER BY key`)
	if err != nil {
		return 0, errors.Wrap(err, "query entitlements")
	}
	defer rows.Close()

	var (
		enc   jx.Encoder
		count int
	)
	for rows.Next() {
		var (
			key       string
			value     bool
			updatedAt time.Time
		)
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return count, errors.Wrap(err, "scan entitlement row")
		}

		enc.Reset()
		enc.ObjStart()
		enc.FieldStart("key")
		enc.Str(key)
		enc.FieldStart("value")
		enc.Bool(value)
		enc.FieldStart("updated_at")
		enc.Str(updatedAt.UTC().Format(time.RFC3339))
		enc.ObjEnd()
		if _, err := w.Write(enc.Bytes()); err != nil {
			return count, errors.Wrap(err, "write row")
		}
		if err := w.WriteByte('\n'); err != nil {
			return count, errors.Wrap(err, "write row")
		}
		count++

		if count%100_000 == 0 {
			slog.Info("export progress", slog.Int("rows", count))
		}
	}
	if err := rows.Err(); err != nil {
		return count, errors.Wrap(err, "iterate entitlements")
	}

	return count, nil
}
