package queue

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

// Store is the narrow slice of the Task/Segment Store the queue needs.
type Store interface {
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)
	UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error
	ListPendingSegments(ctx context.Context, limit int) ([]*domain.Segment, error)
}

// BlobStore is the narrow slice of the Blob Store the queue needs to fetch
// segment audio before dispatch.
type BlobStore interface {
	Reader(key string) (io.ReadCloser, error)
}

// DispatchResult mirrors provider.DispatchResult without importing the
// provider package, keeping the queue decoupled from the HTTP client.
type DispatchResult struct {
	ProviderRequestID string
	Text              string
}

// ProviderClient is the narrow slice of the Transcription Provider client
// the queue needs.
type ProviderClient interface {
	Dispatch(ctx context.Context, segmentID string, audio io.Reader, contentType string) (*DispatchResult, error)
}

// Breaker gates provider calls; satisfied by *breaker.Breaker.
type Breaker interface {
	Execute(fn func() error) error
}

// CompletionNotifier is invoked after any segment reaches a terminal
// state; satisfied by *coordinator.Coordinator.
type CompletionNotifier interface {
	OnSegmentTerminal(ctx context.Context, taskID string) error
}

// Metrics is the narrow slice of the shared Prometheus registry the queue
// reports dispatch activity to; satisfied by *metrics.Metrics.
type Metrics interface {
	RecordDispatched()
	RecordRetried()
	RecordFailed()
	RecordCompleted()
	ObservePumpDuration(seconds float64)
}

// Manager is the Segment Queue: an in-memory Job table plus scheduler.
type Manager struct {
	mu   sync.Mutex
	pump sync.Mutex // serializes ForceProcess invocations

	cfg Config

	store    Store
	blobs    BlobStore
	provider ProviderClient
	breaker  Breaker
	notifier CompletionNotifier
	metrics  Metrics
	log      *logger.Logger

	jobs        map[string]*domain.Job // keyed by jobId
	bySegmentID map[string]string      // segmentId -> jobId, for dedup
	processing  int
}

func NewManager(cfg Config, store Store, blobs BlobStore, provider ProviderClient, brk Breaker, notifier CompletionNotifier, m Metrics, log *logger.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		blobs:       blobs,
		provider:    provider,
		breaker:     brk,
		notifier:    notifier,
		metrics:     m,
		log:         log,
		jobs:        make(map[string]*domain.Job),
		bySegmentID: make(map[string]string),
	}
}

func (m *Manager) Configure(overrides Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = overrides
}

// EnqueueSegment adds a single Job for segment at the given priority.
// segment.Status must be "pending"; a stale enqueue for an
// already-terminal segment is silently ignored (reconciliation handles
// the general case).
func (m *Manager) EnqueueSegment(segment *domain.Segment, priority int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(segment, priority)
}

func (m *Manager) enqueueLocked(segment *domain.Segment, priority int) string {
	if segment.Status != domain.SegmentPending {
		return ""
	}
	if existing, ok := m.bySegmentID[segment.ID]; ok {
		return existing
	}

	job := &domain.Job{
		JobID:       domain.NewID(),
		SegmentID:   segment.ID,
		TaskID:      segment.TaskID,
		BlobPath:    segment.BlobPath,
		Priority:    priority,
		MaxAttempts: m.cfg.MaxAttempts,
		Status:      domain.JobPending,
		ScheduledAt: time.Now(),
		CreatedAt:   time.Now(),
	}
	m.jobs[job.JobID] = job
	m.bySegmentID[segment.ID] = job.JobID
	return job.JobID
}

// EnqueueSegments enqueues every segment for a task, assigning priority
// so earlier-starting segments win dispatch ties: priority = N - index.
func (m *Manager) EnqueueSegments(segments []*domain.Segment, taskID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(segments)
	ids := make([]string, 0, n)
	for i, seg := range segments {
		priority := n - i
		ids = append(ids, m.enqueueLocked(seg, priority))
	}
	return ids
}

// CancelTaskJobs marks every pending/retrying job for taskID as failed
// with lastError="cancelled". Already-processing jobs are left alone.
func (m *Manager) CancelTaskJobs(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, job := range m.jobs {
		if job.TaskID != taskID {
			continue
		}
		if job.Status == domain.JobPending || job.Status == domain.JobRetrying {
			job.Status = domain.JobFailed
			job.LastError = "cancelled"
			count++
		}
	}
	return count
}

// Stats summarizes the current Job table.
type Stats struct {
	Pending    int
	Processing int
	Retrying   int
	Completed  int
	Failed     int
	Total      int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	for _, job := range m.jobs {
		s.Total++
		switch job.Status {
		case domain.JobPending:
			s.Pending++
		case domain.JobProcessing:
			s.Processing++
		case domain.JobRetrying:
			s.Retrying++
		case domain.JobCompleted:
			s.Completed++
		case domain.JobFailed:
			s.Failed++
		}
	}
	return s
}

// CleanupOldJobs drops terminal jobs older than olderThan, returning the
// count removed. Job IDs are ksuid-based so this could alternatively walk
// jobs in ID order; iterating the map and checking CreatedAt is simpler
// and just as correct.
func (m *Manager) CleanupOldJobs(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, job := range m.jobs {
		if job.Status != domain.JobCompleted && job.Status != domain.JobFailed {
			continue
		}
		if job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.bySegmentID, job.SegmentID)
			removed++
		}
	}
	return removed
}

// ForceProcess is the synchronous pump: reconcile against the store, then
// dispatch up to maxConcurrent-currentlyProcessing due jobs, waiting for
// that batch's provider calls to complete before returning.
func (m *Manager) ForceProcess(ctx context.Context, maxJobs int) (processed int, remaining int, err error) {
	m.pump.Lock()
	defer m.pump.Unlock()

	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.ObservePumpDuration(time.Since(start).Seconds())
		}
	}()

	if err := m.reconcile(ctx); err != nil {
		return 0, 0, err
	}

	m.promoteDueRetries()

	batch, remainingCount := m.selectDispatchable(maxJobs)

	var wg sync.WaitGroup
	for _, job := range batch {
		wg.Add(1)
		go func(j *domain.Job) {
			defer wg.Done()
			m.executeJob(ctx, j)
		}(job)
	}
	wg.Wait()

	return len(batch), remainingCount, nil
}

// reconcile realigns in-memory Jobs with durable Segment state: jobs
// whose segment has already reached a terminal status in the store are
// evicted, and any store-pending segment with no corresponding Job gets
// one created. This is what makes the queue safe across stateless
// re-invocations (§4.1).
func (m *Manager) reconcile(ctx context.Context) error {
	m.mu.Lock()
	for id, job := range m.jobs {
		if job.Status == domain.JobCompleted || job.Status == domain.JobFailed {
			continue
		}
		seg, err := m.store.GetSegment(ctx, job.SegmentID)
		if err != nil {
			continue
		}
		if seg.Status.IsTerminal() {
			delete(m.jobs, id)
			delete(m.bySegmentID, job.SegmentID)
		}
	}
	m.mu.Unlock()

	pending, err := m.store.ListPendingSegments(ctx, 500)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range pending {
		if seg.Status != domain.SegmentPending {
			continue
		}
		if _, ok := m.bySegmentID[seg.ID]; ok {
			continue
		}
		// Earlier-starting segments get higher priority, mirroring
		// EnqueueSegments' "N - index" rule using a monotonic proxy:
		// negative startSeconds keeps earlier segments' priority higher
		// without needing the sibling set size.
		priority := -int(seg.StartSeconds)
		m.enqueueLocked(seg, priority)
	}
	return nil
}

// promoteDueRetries moves JobRetrying jobs whose backoff has elapsed back
// to JobPending so they're eligible for the next dispatch selection.
func (m *Manager) promoteDueRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, job := range m.jobs {
		if job.Status == domain.JobRetrying && !job.ScheduledAt.After(now) {
			job.Status = domain.JobPending
		}
	}
}

// selectDispatchable picks up to available slots of due, pending jobs
// ordered by (priority DESC, scheduledAt ASC), marking them processing
// before releasing the lock so concurrently-invoked pumps see an
// accurate processing count. Returns the selected batch and the number
// of still-due pending jobs left unselected.
func (m *Manager) selectDispatchable(maxJobs int) ([]*domain.Job, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var due []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobPending && !job.ScheduledAt.After(now) {
			due = append(due, job)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	slots := m.cfg.MaxConcurrent - m.processing
	if slots < 0 {
		slots = 0
	}
	if maxJobs > 0 && maxJobs < slots {
		slots = maxJobs
	}
	if slots > len(due) {
		slots = len(due)
	}

	batch := due[:slots]
	for _, job := range batch {
		job.Status = domain.JobProcessing
		m.processing++
	}

	return batch, len(due) - slots
}

func (m *Manager) finishProcessing(job *domain.Job, terminal domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = terminal
	m.processing--
}
