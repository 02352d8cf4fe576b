package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/till/internal/domain/coupon"
	"github.com/xenking/till/internal/domain/entry"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/handler"
	"github.com/xenking/till/internal/storage/postgres"
	"github.com/xenking/till/pkg/health"
	"github.com/xenking/till/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithTracerProvider(m.TracerProvider()))
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	a, err := newAPI(ctx, zctx.From(ctx), pool, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	healthSvc, sessions := a.health, a.sessions

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           a.handler,
	}

	g, gCtx := errgroup.WithContext(ctx)
	healthSvc.Start(gCtx, 10*time.Second)
	healthSvc.SetReady(true)

	g.Go(func() error {
		return sessions.Run(gCtx, cfg.Sessions.SweepEvery)
	})

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("Stopped", zap.Int("open_sessions", sessions.Len()))
	return nil
}

// api is the assembled HTTP surface and the components Run manages.
type api struct {
	handler  http.Handler
	health   *health.Service
	sessions *entry.Manager
}

func newAPI(
	ctx context.Context,
	lg *zap.Logger,
	pool *pgxpool.Pool,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
) (*api, error) {
	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	counterpartyRepo := postgres.NewCounterpartyRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	orderService, err := order.NewService(
		counterpartyRepo,
		coupon.NewRepoValidator(couponRepo),
		orderRepo,
		order.WithTracerProvider(tp),
		order.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	sessions := entry.NewManager(entry.Deps{
		Products:       productRepo,
		Counterparties: counterpartyRepo,
		Pricer:         orderService,
	}, cfg.Sessions.TTL, entry.WithMaxActive(cfg.Sessions.MaxActive))

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Add(health.Readiness, "sessions", time.Second, func(context.Context) error {
		if sessions.Full() {
			return errors.Errorf("entry session cap %d reached", cfg.Sessions.MaxActive)
		}
		return nil
	})

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Products:       productRepo,
		Counterparties: counterpartyRepo,
		Pricer:         orderService,
		Sessions:       sessions,
		Security:       handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper)),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	return &api{
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderOrIP(handler.APIKeyHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("till-api", tp, mp),
			httpmiddleware.LogRequests(),
		),
		health:   healthSvc,
		sessions: sessions,
	}, nil
}
