package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Billy-Davies-2/gamefilter/internal/auth"
	"github.com/Billy-Davies-2/gamefilter/internal/clickhouse"
	"github.com/Billy-Davies-2/gamefilter/internal/config"
	"github.com/Billy-Davies-2/gamefilter/internal/dal"
	grpcserver "github.com/Billy-Davies-2/gamefilter/internal/grpc"
	"github.com/Billy-Davies-2/gamefilter/internal/handlers"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/mocks"
	"github.com/Billy-Davies-2/gamefilter/internal/pool"
	"github.com/Billy-Davies-2/gamefilter/internal/pubsub"
	"github.com/Billy-Davies-2/gamefilter/internal/scheduler"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg.LogLevel, os.Stdout)
	logger.Info("Starting GameFilter", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shut down cleanly")
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := openPubSub(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	analytics, err := openAnalytics(ctx, cfg)
	if err != nil {
		return err
	}
	defer analytics.Close()

	reg, err := pool.NewRegistry(cfg.PoolCacheSize, cfg.PoolCacheTTL)
	if err != nil {
		return fmt.Errorf("pool registry: %w", err)
	}
	for league, catalog := range pool.DefaultCatalogs() {
		reg.Register(league, &pool.PopularityRanker{Catalog: catalog, Stats: analytics, Weight: cfg.PopularityWeight})
	}

	svc := service.New(service.Options{
		Store:     store,
		Pool:      reg,
		Publisher: bus.local,
		Recorder:  analytics,
		Retries:   cfg.CASRetries,
	})
	sched := scheduler.New(svc, cfg.SchedulerTick)
	svc.SetTimers(sched)
	if _, err := svc.Restore(ctx); err != nil {
		logger.Warn("Could not restore draft deadlines", "error", err)
	}

	api := handlers.NewAPIHandlers(svc, bus.local)
	api.AddCheck("analytics", analytics.Ping)
	if bus.check != nil {
		api.AddCheck("nats", bus.check)
	}

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           api.Routes(newAuthProvider(cfg)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	grpcserver.Register(grpcServer, grpcserver.NewServer(svc, bus.local))

	g, gctx := errgroup.WithContext(ctx)
	// realtime feeds end with the process instead of holding Shutdown open
	httpServer.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen for gRPC: %w", err)
		}
		logger.Info("gRPC server starting", "address", lis.Addr().String())
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		err := httpServer.Shutdown(shutdownCtx)
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return err
	})

	return g.Wait()
}

func openStore(cfg config.Config) (dal.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		s, err := dal.NewSQLiteDAL(cfg.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite: %w", err)
		}
		logger.Info("Connected to SQLite database", "file", cfg.SQLiteFile)
		return s, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return mocks.NewMockPostgresDAL(cfg.SQLiteFile)
		}
		s, err := dal.NewPostgresDAL(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialize Postgres: %w", err)
		}
		logger.Info("Connected to Postgres database")
		return s, nil
	default:
		logger.Info("Using in-memory data store")
		return dal.NewMemoryDAL(), nil
	}
}

// eventBus is the local fan-out plus whatever broker it is bridged to
type eventBus struct {
	local *pubsub.PubSub
	check handlers.Check
	close func()
}

func (b eventBus) Close() {
	b.close()
}

// openPubSub uses an embedded NATS server in development and a real NATS
// JetStream otherwise. When the embedded server cannot start, development
// falls back to the in-memory broker.
func openPubSub(cfg config.Config) (eventBus, error) {
	natsOpts := pubsub.DefaultNATSOptions()
	natsOpts.SubjectPrefix = cfg.SubjectPrefix
	natsOpts.StreamName = cfg.StreamName

	connected := func(p *pubsub.NATSPubSub) handlers.Check {
		return func(context.Context) error {
			if !p.Connected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	if !cfg.Development() {
		upstream, err := pubsub.NewNATSPubSub(cfg.NATSURL, natsOpts)
		if err != nil {
			return eventBus{}, fmt.Errorf("initialize NATS: %w", err)
		}
		logger.Info("Connected to NATS", "url", cfg.NATSURL)
		local := pubsub.NewWithUpstream(upstream)
		return eventBus{local: local, check: connected(upstream), close: func() {
			local.Close()
			upstream.Close()
		}}, nil
	}

	embeddedOpts := pubsub.DefaultEmbeddedNATSOptions()
	embeddedOpts.NATS.SubjectPrefix = cfg.SubjectPrefix
	embeddedOpts.NATS.StreamName = cfg.StreamName
	embedded, err := pubsub.NewEmbeddedNATSPubSub(embeddedOpts)
	if err != nil {
		logger.Warn("Embedded NATS unavailable, using in-memory broker", "error", err)
		m := mocks.NewMockNATSPubSub()
		return eventBus{local: m.PubSub, close: m.Close}, nil
	}
	logger.Info("Embedded NATS server ready", "url", embedded.GetServerURL())
	local := pubsub.NewWithUpstream(embedded)
	return eventBus{local: local, check: connected(embedded.NATSPubSub), close: func() {
		local.Close()
		embedded.Close()
	}}, nil
}

// pickAnalytics is both the popularity source and the pick sink
type pickAnalytics interface {
	pool.PickStats
	service.PickRecorder
	Ping(ctx context.Context) error
	Close() error
}

func openAnalytics(ctx context.Context, cfg config.Config) (pickAnalytics, error) {
	if cfg.Development() {
		logger.Info("Using mock pick analytics for local development (no ClickHouse server required)")
		return mocks.NewMockPickStats(), nil
	}
	ch, err := clickhouse.NewClient(cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password)
	if err != nil {
		return nil, fmt.Errorf("initialize ClickHouse: %w", err)
	}
	if err := ch.EnsureSchema(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("ClickHouse schema: %w", err)
	}
	logger.Info("Connected to ClickHouse", "address", cfg.ClickHouse.Addr, "database", cfg.ClickHouse.Database)
	return ch, nil
}

// newAuthProvider uses mock auth in development and Authentik otherwise
func newAuthProvider(cfg config.Config) auth.AuthProvider {
	if cfg.Development() {
		logger.Info("Using mock authentication for local development (no Authentik server required)")
		return auth.NewMockAuth()
	}
	logger.Info("Using Authentik authentication", "url", cfg.Authentik.BaseURL)
	return auth.NewAuthentikAuth(&auth.AuthentikConfig{
		BaseURL:      cfg.Authentik.BaseURL,
		ClientID:     cfg.Authentik.ClientID,
		ClientSecret: cfg.Authentik.ClientSecret,
		RedirectURL:  cfg.Authentik.RedirectURL,
	})
}
