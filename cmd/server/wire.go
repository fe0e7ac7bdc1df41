package main

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/api"
	"github.com/neurobot/backend/internal/config"
	"github.com/neurobot/backend/internal/group"
	"github.com/neurobot/backend/internal/health"
	"github.com/neurobot/backend/internal/inference"
	"github.com/neurobot/backend/internal/ingest"
	"github.com/neurobot/backend/internal/metrics"
	"github.com/neurobot/backend/internal/record"
	"github.com/neurobot/backend/internal/relay"
	"github.com/neurobot/backend/internal/storage"
	"github.com/neurobot/backend/internal/ws"
)

// newContainer registers every component of the server. Optional
// components (database, relay) fall back to in-process versions when their
// URL is not configured.
func newContainer(cfg *config.Config, log *zap.Logger) (*dig.Container, error) {
	c := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() *zap.Logger { return log },
		metrics.New,
		func() group.Registry { return group.NewMemoryRegistry() },
		newHub,
		newStore,
		newInference,
		newRepository,
		newTracker,
		newRelay,
		newPublisher,
		newIngestHandler,
		newReporter,
		newRouter,
		newHTTPServer,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("provide: %w", err)
		}
	}
	return c, nil
}

func newHub(reg group.Registry, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *ws.Hub {
	return ws.NewHub(reg, cfg.Live, log.Named("ws"), m)
}

func newStore(cfg *config.Config, log *zap.Logger) (*storage.Store, error) {
	return storage.New(cfg.Storage, log.Named("storage"))
}

func newInference(cfg *config.Config, log *zap.Logger) *inference.Client {
	if cfg.Inference.APIKey == "" {
		log.Info("mood inference disabled: no API key configured")
	}
	return inference.New(cfg.Inference, log.Named("inference"))
}

func newRepository(cfg *config.Config, log *zap.Logger) (record.Repository, error) {
	if cfg.Database.URL == "" {
		log.Info("no database configured, records kept in memory")
		return record.NewMemoryRepository(), nil
	}
	return record.OpenPostgres(cfg.Database.URL, log.Named("record"))
}

func newTracker() *health.Tracker {
	t := health.NewTracker(3)
	t.Register(ingest.DepStorage, ingest.DepInference, ingest.DepDatabase)
	return t
}

// newRelay returns nil when no broker is configured.
func newRelay(cfg *config.Config, hub *ws.Hub, log *zap.Logger) (*relay.Relay, error) {
	if cfg.Relay.URL == "" {
		return nil, nil
	}
	return relay.Dial(cfg.Relay.URL, cfg.Relay.Exchange, hub, log.Named("relay"))
}

func newPublisher(hub *ws.Hub, rl *relay.Relay) ingest.Publisher {
	if rl != nil {
		return rl
	}
	return hub
}

func newIngestHandler(cfg *config.Config, store *storage.Store, moods *inference.Client, repo record.Repository,
	pub ingest.Publisher, tracker *health.Tracker, m *metrics.Metrics, log *zap.Logger) *ingest.Handler {
	return ingest.NewHandler(store, moods, repo, pub,
		ingest.Options{Group: group.Live, MaxBodyBytes: cfg.Ingest.MaxBodyBytes},
		tracker, m, log.Named("ingest"))
}

func newReporter(tracker *health.Tracker, hub *ws.Hub, log *zap.Logger) *health.Reporter {
	return health.NewReporter(tracker, hub.Count, log.Named("health"))
}

func newRouter(cfg *config.Config, hub *ws.Hub, h *ingest.Handler, reporter *health.Reporter,
	m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	return api.NewRouter(cfg, api.Deps{
		Live:    ws.NewServer(hub, cfg.Server.Origins(), log.Named("ws")),
		Ingest:  h,
		Health:  reporter,
		Metrics: m,
	}, log.Named("http"))
}

func newHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}
