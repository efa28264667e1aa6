// Package server wires the gravecore service to its configured storage,
// event, audit and graph backends and runs the HTTP API.
package server

import (
	"context"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	apihttp "gravecore/internal/api/http"
	"gravecore/internal/blob"
	"gravecore/internal/core"
	"gravecore/internal/infra/audit"
	"gravecore/internal/infra/graph"
	"gravecore/internal/infra/mq"
	"gravecore/pkg/domain"
	"gravecore/pkg/log"
)

// Server represents the gravecore server
type Server struct {
	config   Config
	logger   *slog.Logger
	store    domain.PersistentStore
	blob     blob.Store
	service  *core.Service
	registry *prometheus.Registry
	queue    mq.MessageQueue
	consumer *mq.KafkaConsumer
	redis    *audit.RedisRecorder
	graph    *graph.Neo4jStore
	http     *apihttp.Server
}

// NewServer creates a new server with the given configuration
func NewServer(conf Config) (*Server, error) {
	server := &Server{
		config: conf,
	}

	if err := server.initDepend(); err != nil {
		server.closeDepend()
		return nil, errors.WithMessage(err, "init server dependency failed")
	}

	if err := server.initService(); err != nil {
		server.closeDepend()
		return nil, errors.WithMessage(err, "init service failed")
	}

	if err := server.initHTTP(); err != nil {
		server.closeDepend()
		return nil, errors.WithMessage(err, "init http failed")
	}

	return server, nil
}

// initDepend initializes all dependencies
func (s *Server) initDepend() error {
	// Initialize log first
	if err := log.Init(s.config.Log); err != nil {
		return errors.WithMessage(err, "failed to init log")
	}

	s.logger = log.Logger("server")
	s.logger.Info("initializing dependencies")

	ctx := context.Background()

	s.logger.Info("initializing storage", "driver", s.config.Storage.Driver)
	store, err := core.OpenPersistentStore(ctx, s.config.Storage, nil)
	if err != nil {
		return errors.WithMessage(err, "failed to open store")
	}
	s.store = store

	s.logger.Info("initializing blob store", "driver", s.config.Blob.Driver)
	if s.blob, err = blob.Open(ctx, s.config.Blob); err != nil {
		return errors.WithMessage(err, "failed to open blob store")
	}

	if s.config.Audit.Enabled {
		s.logger.Info("initializing redis audit recorder")
		if s.redis, err = audit.Open(ctx, s.config.Audit); err != nil {
			return errors.WithMessage(err, "failed to init redis")
		}
	}

	if s.config.Graph.Enabled {
		s.logger.Info("initializing graph store")
		if s.graph, err = graph.Open(ctx, s.config.Graph); err != nil {
			return errors.WithMessage(err, "failed to init graph store")
		}
	}

	s.logger.Info("initializing message queue", "driver", s.config.Events.Driver)
	if err := s.initQueue(); err != nil {
		return errors.WithMessage(err, "failed to init message queue")
	}

	return nil
}

// initQueue selects the change event transport and attaches the graph
// projector when the projection is enabled.
func (s *Server) initQueue() error {
	topic := s.config.Events.Topic
	var handler mq.MessageHandler
	if s.graph != nil {
		handler = graph.NewProjector(s.graph).Handle
	}

	if s.config.Events.Driver != mq.DriverKafka {
		queue := mq.NewInMemoryQueue()
		if handler != nil {
			if err := queue.Subscribe(topic, func(message []byte) error {
				return handler(context.Background(), topic, message)
			}); err != nil {
				return err
			}
		}
		s.queue = queue
		return nil
	}

	producer, err := mq.NewKafkaProducer(s.config.Events.Brokers)
	if err != nil {
		return err
	}
	s.queue = producer
	if handler != nil {
		consumer, err := mq.NewKafkaConsumer(s.config.Events.Brokers, s.config.Events.Group, []string{topic}, handler)
		if err != nil {
			return err
		}
		s.consumer = consumer
	}
	return nil
}

// initService builds the service with its observability stack.
func (s *Server) initService() error {
	s.logger.Info("initializing service")

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := core.NewPrometheusMetricsRecorder(s.registry)
	if err != nil {
		return errors.WithMessage(err, "failed to register metrics")
	}

	coreLogger := log.Logger("core")
	recorders := core.FanoutAuditRecorder{core.NewStoreAuditRecorder(s.store, coreLogger)}
	if s.redis != nil {
		recorders = append(recorders, s.redis)
	}

	s.service = core.NewService(s.store,
		core.WithLogger(coreLogger),
		core.WithAuditRecorder(recorders),
		core.WithMetricsRecorder(metrics),
		core.WithChangePublisher(s.queue, s.config.Events.Topic),
	)
	s.logger.Info("rules registered", "rules", s.service.Rules())
	return nil
}

func (s *Server) initHTTP() error {
	serverCfg := apihttp.DefaultServerConfig()
	if s.config.Server.Host != "" {
		serverCfg.Host = s.config.Server.Host
	}
	serverCfg.Port = s.config.Server.Port
	serverCfg.ReadTimeout, serverCfg.WriteTimeout = s.config.Server.timeouts(serverCfg.ReadTimeout, serverCfg.WriteTimeout)

	opts := []apihttp.HandlerOption{
		apihttp.WithMetricsHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})),
	}
	if s.graph != nil {
		opts = append(opts, apihttp.WithHealthCheck("graph", s.graph.Health))
	}

	srv, err := apihttp.NewServer(s.service, serverCfg, opts...)
	if err != nil {
		return err
	}
	s.http = srv
	return nil
}

// Service exposes the wired service.
func (s *Server) Service() *core.Service { return s.service }

// Backup writes a snapshot of the store to the configured blob store.
func (s *Server) Backup(ctx context.Context) (blob.Info, error) {
	info, err := s.service.Backup(ctx, s.blob)
	if err != nil {
		return info, errors.WithMessage(err, "backup failed")
	}
	s.logger.Info("backup written", "key", info.Key, "size", info.Size)
	return info, nil
}

// ListBackups lists the snapshots in the configured blob store.
func (s *Server) ListBackups(ctx context.Context) ([]blob.Info, error) {
	infos, err := s.service.ListBackups(ctx, s.blob)
	if err != nil {
		return nil, errors.WithMessage(err, "list backups failed")
	}
	return infos, nil
}

// Start starts the HTTP server and, with Kafka events, the graph consumer.
func (s *Server) Start() error {
	s.logger.Info("starting", "addr", s.http.Addr())

	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			s.logger.Info("received shutdown signal")
			cancel()
		case <-base.Done():
		}
	}()

	g, ctx := errgroup.WithContext(base)

	if s.consumer != nil {
		g.Go(func() error {
			if err := s.consumer.Run(ctx); err != nil {
				return errors.WithMessage(err, "consumer error")
			}
			return nil
		})
	}

	g.Go(func() error {
		return s.runHTTPServer(ctx)
	})

	return g.Wait()
}

func (s *Server) runHTTPServer(ctx context.Context) error {
	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	if err := s.http.Start(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return errors.WithMessage(err, "http server error")
	}
	return nil
}

// Shutdown releases every backend.
func (s *Server) Shutdown() error {
	if s.logger != nil {
		s.logger.Info("shutting down")
	}
	s.closeDepend()
	return nil
}

func (s *Server) closeDepend() {
	ctx := context.Background()
	logErr := func(msg string, err error) {
		if err != nil && s.logger != nil {
			s.logger.Error(msg, "error", err)
		}
	}

	if s.queue != nil {
		logErr("failed to close message queue", s.queue.Close())
	}
	if s.graph != nil {
		logErr("failed to close graph store", s.graph.Close(ctx))
	}
	if s.redis != nil {
		logErr("failed to close redis", s.redis.Close())
	}
	if closer, ok := s.store.(io.Closer); ok {
		logErr("failed to close store", closer.Close())
	}
}
