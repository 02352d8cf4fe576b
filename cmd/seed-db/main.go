package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/till/db"
	"github.com/xenking/till/internal/domain/auth"
	"github.com/xenking/till/internal/storage/postgres"
)

func main() {
	var (
		databaseURL   string
		catalogueFile string
		apiKey        string
		apiKeyPepper  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogueFile, "file", "", "path to catalogue JSON file (embedded demo catalogue when empty)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or TILL_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TILL_API_KEY_PEPPER env)")
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
	if apiKey == "" {
		apiKey = os.Getenv("TILL_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or TILL_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TILL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogueFile, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogueFile, apiKey, pepper string) error {
	data := db.Catalogue
	if catalogueFile != "" {
		lg.Info("Reading catalogue file", zap.String("path", catalogueFile))
		var err error
		if data, err = os.ReadFile(catalogueFile); err != nil {
			return errors.Wrap(err, "read catalogue file")
		}
	}
	c, err := parseCatalogue(data)
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

	products := postgres.NewProductRepository(pool)
	for _, p := range c.Products {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Upserted products", zap.Int("count", len(c.Products)))

	counterparties := postgres.NewCounterpartyRepository(pool)
	for _, cp := range c.Counterparties {
		if err := counterparties.Upsert(ctx, cp); err != nil {
			return errors.Wrapf(err, "upsert counterparty %s", cp.ID)
		}
	}
	lg.Info("Upserted counterparties", zap.Int("count", len(c.Counterparties)))

	if err := postgres.NewCouponRepository(pool).UpsertBatch(ctx, c.Coupons); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	lg.Info("Upserted coupons", zap.Int("count", len(c.Coupons)))

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default till key",
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", key.ID), zap.String("name", key.Name))
	return nil
}
