package app

import (
	"context"
	"fmt"
	"time"

	"github.com/transcribebridge/bridge/internal/assembler"
	"github.com/transcribebridge/bridge/internal/blobstore"
	"github.com/transcribebridge/bridge/internal/breaker"
	"github.com/transcribebridge/bridge/internal/coordinator"
	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/inbound"
	"github.com/transcribebridge/bridge/internal/infra/config"
	"github.com/transcribebridge/bridge/internal/infra/logger"
	"github.com/transcribebridge/bridge/internal/observability"
	"github.com/transcribebridge/bridge/internal/observability/metrics"
	"github.com/transcribebridge/bridge/internal/provider"
	"github.com/transcribebridge/bridge/internal/queue"
	"github.com/transcribebridge/bridge/internal/store"
	"github.com/transcribebridge/bridge/internal/webhook"
)

// Store is the contract for task/segment persistence the API layer calls
// directly. The queue/coordinator/inbound packages declare their own
// narrower slices and are satisfied by the same concrete *store.Store.
type Store interface {
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CountTasks(ctx context.Context, status *domain.TaskStatus) (int, error)
	CreateSegments(ctx context.Context, segments []*domain.Segment) error
	ListSegmentsByTask(ctx context.Context, taskID string) ([]*domain.Segment, error)
}

// QueueManager is the Segment Queue surface the API/CLI layer drives.
type QueueManager interface {
	EnqueueSegments(segments []*domain.Segment, taskID string) []string
	CancelTaskJobs(taskID string) int
	CleanupOldJobs(olderThan time.Duration) int
	ForceProcess(ctx context.Context, maxJobs int) (processed int, remaining int, err error)
	Stats() queue.Stats
}

// InboundHandler is the Inbound Webhook Handler surface the API layer
// drives.
type InboundHandler interface {
	Handle(ctx context.Context, body []byte, signatureHeader string, segmentIDHint string) error
}

// Context holds the core environment and shared resources for
// TranscribeBridge. It acts as the single source of truth the API
// controllers and CLI commands are built against.
type Context struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	Store   Store
	Blob    *blobstore.FileStore
	Queue   QueueManager
	Inbound InboundHandler
	Obs     *observability.Server

	store *store.Store // concrete handle, kept only for Close()
}

// NewContext wires every component of the transcription bridge: the
// Postgres-backed Task/Segment Store, the filesystem blob store, the
// transcription provider client (behind its own circuit breaker), the
// Segment Queue, the Result Assembler, the Client Webhook Deliverer
// (behind a per-destination circuit breaker registry), the Completion
// Coordinator, and the Inbound Webhook Handler.
func NewContext(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Context, error) {
	st, err := store.New(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	blobs, err := blobstore.New(cfg.Blob.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	m := metrics.New()

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryTimeoutSec) * time.Second,
	}
	providerBreaker := breaker.New("transcription-provider", breakerCfg).SetReporter(m)

	providerClient := provider.New(provider.Config{
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		CallbackBaseURL: cfg.Provider.CallbackBaseURL,
	})

	asm := assembler.New(log)

	deliverer := webhook.NewDeliverer(webhook.DelivererConfig{
		SigningSecret:  cfg.Webhook.SigningSecret,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		TimeoutSeconds: cfg.Webhook.TimeoutSeconds,
	}, log).SetBreakerReporter(m)

	coord := coordinator.New(st, asm, &deliveryMetricsAdapter{deliverer: deliverer, metrics: m}, coordinator.Config{
		Lenient: cfg.CompletionPolicyLenient,
	}, log)

	queueCfg := queue.Config{
		MaxConcurrent:     cfg.Queue.MaxConcurrent,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		BaseDelay:         time.Duration(cfg.Queue.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Queue.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
	}
	qm := queue.NewManager(queueCfg, st, blobs, &queueProviderAdapter{client: providerClient}, providerBreaker, coord, m, log)

	inboundHandler := inbound.New(st, coord, inbound.Config{WebhookSecret: cfg.Provider.WebhookSecret}, log)

	return &Context{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Store:   st,
		Blob:    blobs,
		Queue:   qm,
		Inbound: inboundHandler,
		Obs:     observability.NewServer(cfg.Metrics.Addr),
		store:   st,
	}, nil
}

func (c *Context) Close() {
	c.Logger.Info("shutting down store...")
	c.store.Close()
}

// deliveryMetricsAdapter wraps the Client Webhook Deliverer so every
// delivery's outcome is recorded on the shared metrics registry without
// the webhook package needing to import it.
type deliveryMetricsAdapter struct {
	deliverer *webhook.Deliverer
	metrics   *metrics.Metrics
}

func (a *deliveryMetricsAdapter) Deliver(ctx context.Context, taskID, url string, payload *domain.WebhookPayload) *domain.DeliveryResult {
	result := a.deliverer.Deliver(ctx, taskID, url, payload)
	a.metrics.RecordDelivery(result.FinalStatus == "delivered", len(result.Attempts))
	return result
}
