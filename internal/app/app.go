package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/voucher-engine/internal/domain/auth"
	"github.com/xenking/voucher-engine/internal/domain/order"
	"github.com/xenking/voucher-engine/internal/domain/promotion"
	"github.com/xenking/voucher-engine/internal/domain/voucher"
	"github.com/xenking/voucher-engine/internal/handler"
	"github.com/xenking/voucher-engine/internal/sweeper"
	"github.com/xenking/voucher-engine/pkg/health"
	"github.com/xenking/voucher-engine/pkg/httpmiddleware"
)

// Run wires storage, services, the expiry sweeper and the HTTP server, then
// serves until ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	st, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer st.close()

	probes := health.New()
	probes.AddReadinessCheck("storage", 5*time.Second, health.PingCheck(st.ping))
	probes.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	probes.Start(ctx, 10*time.Second)
	defer probes.Stop()

	vouchers := voucher.NewService(st.vouchers)
	promotions := promotion.NewService(st.promotions)
	orders, err := order.NewService(
		st.products, st.orders, st.vouchers, st.promotions, st.tx,
		m.TracerProvider(), m.MeterProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	sw, err := sweeper.New(lg.Named("sweeper"), cfg.Sweeper.Interval,
		sweeper.Target{Name: "vouchers", Rules: vouchers},
		sweeper.Target{Name: "promotions", Rules: promotions},
	)
	if err != nil {
		return errors.Wrap(err, "create sweeper")
	}
	if err := sw.Start(ctx); err != nil {
		return errors.Wrap(err, "start sweeper")
	}
	defer func() {
		if err := sw.Stop(); err != nil {
			lg.Error("Sweeper stop failed", zap.Error(err))
		}
	}()

	router := chi.NewRouter()
	router.Get("/livez", probes.LiveEndpoint)
	router.Get("/readyz", probes.ReadyEndpoint)
	handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		st.products, orders, vouchers, promotions,
		auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
	).Routes(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(router, middlewares(ctx, cfg, m, httpmiddleware.MakeRouteFinder(router))...),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		drain(lg, cfg.Graceful, probes, srv)
	}()

	probes.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	<-drained
	return nil
}

// middlewares returns the chain outermost first. Recovery wraps everything so
// a panicking middleware still yields a JSON 500.
func middlewares(ctx context.Context, cfg *Config, m *app.Telemetry, routes httpmiddleware.RouteFinder) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           int((24 * time.Hour).Seconds()),
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.KeyByBearer,
			Skip:    httpmiddleware.SkipPaths("/livez", "/readyz"),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("voucher-api", routes, m),
		httpmiddleware.LogRequests(routes),
		httpmiddleware.Labeler(routes),
	}
}

// drain flips readiness off, waits for load balancers to notice, then shuts
// the server down within the configured timeout.
func drain(lg *zap.Logger, g GracefulConfig, probes *health.Health, srv *http.Server) {
	probes.SetReady(false)
	lg.Info("Draining", zap.Duration("readiness_delay", g.ReadinessDelay))
	time.Sleep(g.ReadinessDelay)

	ctx, cancel := context.WithTimeout(context.Background(), g.ShutdownTimeout)
	defer cancel()
	lg.Info("Shutting down", zap.Duration("timeout", g.ShutdownTimeout))
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("Shutdown failed", zap.Error(err))
	}
}
