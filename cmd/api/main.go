package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"freightmatch/auth"
	"freightmatch/config"
	"freightmatch/db"
	"freightmatch/directory"
	"freightmatch/matching"
	"freightmatch/migrations"
	"freightmatch/notification"
	"freightmatch/offer"
	"freightmatch/rating"
	"freightmatch/shipment"
	"freightmatch/verification"
)

const dispatchTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "event", "server_exit", "module", "api", "layer", "bootstrap", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.StorageTimeout,
	})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := migrations.Up(pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied", "event", "migrations_applied", "module", "api", "layer", "bootstrap")
	}

	publisher, closePublisher, err := newPublisher(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	outbox := notification.NewOutbox(pool)
	async := notification.NewAsync(outbox, dispatchTimeout, logger)

	server := newServer(cfg, pool, outbox, async, logger)
	relay := notification.NewRelay(pool, notification.OutboxStore{}, publisher, notification.RelayConfig{
		Interval:    cfg.RelayInterval,
		Batch:       cfg.RelayBatch,
		MaxAttempts: cfg.RelayMaxAttempts,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "event", "http_listen", "module", "api", "layer", "bootstrap", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "event", "shutdown", "module", "api", "layer", "bootstrap")
		err := httpServer.Shutdown(shutdownCtx)
		if cerr := async.Close(shutdownCtx); cerr != nil {
			logger.Warn("pending notifications abandoned", "event", "dispatch_abandoned", "module", "api", "layer", "bootstrap", "error", cerr)
		}
		return err
	})
	return g.Wait()
}

func newServer(cfg config.Config, pool *pgxpool.Pool, outbox *notification.Outbox, dispatcher notification.Dispatcher, logger *slog.Logger) *Server {
	verifier := verification.NewService(verification.NewRepository(pool), logger).WithDispatcher(dispatcher)
	engine := matching.NewEngine(pool, matching.NewRepository(), outbox, logger)
	shipments := shipment.NewService(shipment.NewRepository(pool), verifier, logger).WithCanceller(engine)

	return &Server{
		authService:         auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		shipmentService:     shipments,
		offerService:        offer.NewService(pool, offer.NewRepository(pool), verifier, outbox, logger),
		matchingEngine:      engine,
		ratingService:       rating.NewService(pool, rating.NewRepository(pool), outbox, logger),
		directoryService:    directory.NewService(directory.NewRepository(pool)),
		verificationService: verifier,
		inboxService:        notification.NewInboxService(notification.NewInboxRepository(pool), outbox, logger),
		health:              pool,
		logger:              logger,
		storageTimeout:      cfg.StorageTimeout,
	}
}

// newPublisher always delivers to the in-app inbox and additionally to the
// configured transport.
func newPublisher(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (notification.Publisher, func(), error) {
	inbox := notification.NewInboxPublisher(notification.NewInboxRepository(pool))
	switch cfg.NotifyTransport {
	case config.TransportKafka:
		kp := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return notification.Fanout{inbox, kp}, func() { _ = kp.Close() }, nil
	case config.TransportAMQP:
		ap, err := notification.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("connect amqp: %w", err)
		}
		return notification.Fanout{inbox, ap}, func() { _ = ap.Close() }, nil
	default:
		return notification.Fanout{inbox, notification.NewLogPublisher(logger)}, func() {}, nil
	}
}
