package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/canteen-orders/internal/domain/notify"
	"github.com/xenking/canteen-orders/internal/domain/order"
	"github.com/xenking/canteen-orders/internal/events"
	"github.com/xenking/canteen-orders/internal/handler"
	"github.com/xenking/canteen-orders/pkg/health"
	"github.com/xenking/canteen-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage.Driver))

	storage, err := OpenStorage(ctx, lg, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer storage.Close()

	// Order store.
	store := order.NewStore(storage.Slot,
		order.WithLogger(lg.Named("order")),
		order.WithTracer(m.TracerProvider().Tracer("canteen/order")),
	)
	if err := store.Load(ctx); err != nil {
		return errors.Wrap(err, "load orders")
	}

	metrics, err := NewMetrics(m.MeterProvider().Meter("canteen"))
	if err != nil {
		return errors.Wrap(err, "metrics")
	}
	store.Subscribe(metrics)

	// Pending-order watcher, ticked after every store event.
	alerts := notify.Alerts{notify.NewLogAlert(lg.Named("alert"))}
	if cfg.Notify.Bell {
		alerts = append(alerts, notify.NewBellAlert(os.Stdout))
	}
	watcher := notify.NewWatcher(
		notify.WithDuration(cfg.Notify.Duration),
		notify.WithAlert(alerts),
		notify.WithLogger(lg.Named("notify")),
		notify.WithOnNotify(metrics.OnNotify),
	)
	defer watcher.Stop()
	watcher.Tick(store)
	store.Subscribe(watcher.Listener(store))

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if storage.Ping != nil {
		healthSvc.AddReadinessCheck("storage", 5*time.Second, storage.Ping)
	}

	// Optional event publishing.
	if cfg.AMQP.URL != "" {
		conn, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect amqp")
		}
		defer func() { _ = conn.Close() }()

		store.Subscribe(events.NewPublisher(conn.Channel(), cfg.AMQP.Exchange, lg.Named("events")))
		healthSvc.AddReadinessCheck("amqp", time.Second, conn.Healthy)
		lg.Info("Publishing order events", zap.String("exchange", cfg.AMQP.Exchange))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	staff, err := handler.NewStaff([]byte(cfg.Staff.Pepper), cfg.Staff.KeyHashes)
	if err != nil {
		return errors.Wrap(err, "staff keys")
	}
	if len(cfg.Staff.KeyHashes) == 0 {
		lg.Warn("No staff keys configured, staff routes will refuse every request")
	}
	h := handler.NewHandler(
		handler.Config{Revenue: storage.Revenue},
		store,
		order.NewPolicy(store),
		watcher,
		staff,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg.Named("http")),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, handler.StudentIDHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   httpmiddleware.IsProbe,
			}),
			httpmiddleware.Instrument("canteen-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()

		if err := store.Flush(shutdownCtx); err != nil {
			return errors.Wrap(err, "flush orders")
		}
		return nil
	})
	return g.Wait()
}
