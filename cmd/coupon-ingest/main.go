package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/storage/postgres"
)

const batchSize = 1000

func main() {
	var (
		dataDir     string
		databaseURL string
		cfg         ingestConfig
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbase*.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.MinSources, "min-sources", 2, "number of files a code must appear in to be valid")
	flag.UintVar(&cfg.Capacity, "bloom-capacity", 120_000_000, "expected codes per file")
	flag.Float64Var(&cfg.FPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, cfg); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, cfg ingestConfig) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "couponbase*.gz"))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no couponbase*.gz files in %s", dataDir)
	}
	sort.Strings(files)
	lg.Info("Scanning coupon files", zap.Strings("files", files), zap.Int("min_sources", cfg.MinSources))

	codes, err := findCodes(ctx, lg, files, cfg)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	rules, err := rulesFor(codes)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	for start := 0; start < len(rules); start += batchSize {
		end := min(start+batchSize, len(rules))
		if err := repo.UpsertBatch(ctx, rules[start:end]); err != nil {
			return errors.Wrapf(err, "write coupons %d-%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(rules)))
	}
	return nil
}
