package pubsub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/gamefilter/internal/logger"
)

// EmbeddedNATSPubSub runs a JetStream-enabled NATS server in-process and
// talks to it the same way NATSPubSub talks to an external broker.
type EmbeddedNATSPubSub struct {
	*NATSPubSub
	server *server.Server
}

// EmbeddedNATSOptions configures the embedded NATS server
type EmbeddedNATSOptions struct {
	Port     int    // Port to listen on (0 = random available port)
	StoreDir string // Directory for JetStream storage (empty = in-memory)
	NATS     NATSOptions
}

// DefaultEmbeddedNATSOptions returns sensible defaults for development
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	opts := DefaultNATSOptions()
	opts.Storage = nats.MemoryStorage
	opts.MaxAge = time.Hour
	return EmbeddedNATSOptions{Port: -1, NATS: opts}
}

// NewEmbeddedNATSPubSub creates a new embedded NATS server and pub/sub
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*EmbeddedNATSPubSub, error) {
	port := opts.Port
	if port == 0 {
		port = -1 // 0 means default (4222), -1 means random
	}

	serverOpts := &server.Options{
		Host:       "127.0.0.1",
		Port:       port,
		JetStream:  true,
		NoSigs:     true,
		StoreDir:   opts.StoreDir,
		ServerName: "gamefilter-dev",
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.SetLogger(newNATSLogger(), false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}
	logger.Info("Embedded NATS server started", "url", ns.ClientURL(), "stream", opts.NATS.StreamName)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	p, err := newNATSPubSub(nc, opts.NATS)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}

	return &EmbeddedNATSPubSub{NATSPubSub: p, server: ns}, nil
}

// Close shuts down the embedded NATS server
func (p *EmbeddedNATSPubSub) Close() {
	logger.Info("Shutting down embedded NATS server")
	p.NATSPubSub.Close()
	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
	}
}

// GetServerURL returns the URL of the embedded NATS server
func (p *EmbeddedNATSPubSub) GetServerURL() string {
	return p.server.ClientURL()
}

// natsLogger forwards NATS server logs to the service logger
type natsLogger struct {
	log *slog.Logger
}

func newNATSLogger() *natsLogger {
	return &natsLogger{log: logger.With("component", "nats-server")}
}

func (l *natsLogger) Noticef(format string, v ...any) { l.log.Info(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Warnf(format string, v ...any) { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Fatalf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *natsLogger) Tracef(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...), "trace", true) }
