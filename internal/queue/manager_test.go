package queue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

type fakeStore struct {
	mu       sync.Mutex
	segments map[string]*domain.Segment
}

func newFakeStore(segs ...*domain.Segment) *fakeStore {
	s := &fakeStore{segments: map[string]*domain.Segment{}}
	for _, seg := range segs {
		s.segments[seg.ID] = seg
	}
	return s
}

func (f *fakeStore) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[id]
	if !ok {
		return nil, domain.NewNotFoundError("segment", id)
	}
	cp := *seg
	return &cp, nil
}

func (f *fakeStore) UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg := f.segments[id]
	if patch.Status != nil {
		seg.Status = *patch.Status
	}
	if patch.TranscriptText != nil {
		seg.TranscriptText = patch.TranscriptText
	}
	if patch.ProviderRequestID != nil {
		seg.ProviderRequestID = patch.ProviderRequestID
	}
	if patch.ErrorMessage != nil {
		seg.ErrorMessage = patch.ErrorMessage
	}
	if patch.CompletedAt != nil {
		seg.CompletedAt = patch.CompletedAt
	}
	return nil
}

func (f *fakeStore) ListPendingSegments(ctx context.Context, limit int) ([]*domain.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Segment
	for _, seg := range f.segments {
		if !seg.Status.IsTerminal() {
			cp := *seg
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeBlobStore struct{}

func (fakeBlobStore) Reader(key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("audio"))), nil
}

type fakeProvider struct {
	mu        sync.Mutex
	failTimes int
	failErr   error
	result    *DispatchResult
}

func (f *fakeProvider) Dispatch(ctx context.Context, segmentID string, audio io.Reader, contentType string) (*DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return nil, f.failErr
	}
	return f.result, nil
}

type passthroughBreaker struct{}

func (passthroughBreaker) Execute(fn func() error) error { return fn() }

type fakeNotifier struct {
	calls atomic.Int32
}

func (f *fakeNotifier) OnSegmentTerminal(ctx context.Context, taskID string) error {
	f.calls.Add(1)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir()+"/test.log", logger.LevelDebug, false)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return l
}

func TestForceProcessDispatchesInlineCompletion(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", BlobPath: "segments/task-1/segment_0.mp3", Status: domain.SegmentPending}
	store := newFakeStore(seg)
	provider := &fakeProvider{result: &DispatchResult{Text: "hello world"}}
	notifier := &fakeNotifier{}

	m := NewManager(DefaultConfig(), store, fakeBlobStore{}, provider, passthroughBreaker{}, notifier, nil, testLogger(t))
	m.EnqueueSegment(seg, 1)

	processed, remaining, err := m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 || remaining != 0 {
		t.Fatalf("expected processed=1 remaining=0, got processed=%d remaining=%d", processed, remaining)
	}

	stored, _ := store.GetSegment(context.Background(), "seg-1")
	if stored.Status != domain.SegmentCompleted {
		t.Fatalf("expected segment completed, got %s", stored.Status)
	}
	if notifier.calls.Load() != 1 {
		t.Fatalf("expected exactly one completion notification, got %d", notifier.calls.Load())
	}
}

func TestForceProcessRetriesThenSucceeds(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending}
	store := newFakeStore(seg)
	provider := &fakeProvider{failTimes: 1, failErr: errors.New("service unavailable"), result: &DispatchResult{Text: "ok"}}
	notifier := &fakeNotifier{}

	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond

	m := NewManager(cfg, store, fakeBlobStore{}, provider, passthroughBreaker{}, notifier, nil, testLogger(t))
	m.EnqueueSegment(seg, 1)

	processed, _, err := m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 job dispatched on first pump, got %d", processed)
	}

	stats := m.Stats()
	if stats.Retrying != 1 {
		t.Fatalf("expected job to be retrying after a retryable failure, got stats=%+v", stats)
	}

	time.Sleep(10 * time.Millisecond)

	processed, _, err = m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the retried job to dispatch on the second pump, got %d", processed)
	}

	stored, _ := store.GetSegment(context.Background(), "seg-1")
	if stored.Status != domain.SegmentCompleted {
		t.Fatalf("expected eventual success, got %s", stored.Status)
	}
}

func TestForceProcessNonRetryableErrorFailsImmediately(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending}
	store := newFakeStore(seg)
	provider := &fakeProvider{failTimes: 10, failErr: domain.NewAuthenticationError("bad api key")}
	notifier := &fakeNotifier{}

	m := NewManager(DefaultConfig(), store, fakeBlobStore{}, provider, passthroughBreaker{}, notifier, nil, testLogger(t))
	m.EnqueueSegment(seg, 1)

	_, _, err := m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetSegment(context.Background(), "seg-1")
	if stored.Status != domain.SegmentFailed {
		t.Fatalf("expected immediate failure for a non-retryable error, got %s", stored.Status)
	}
	if notifier.calls.Load() != 1 {
		t.Fatalf("expected a completion notification on segment failure, got %d", notifier.calls.Load())
	}
}

func TestForceProcessRespectsMaxConcurrent(t *testing.T) {
	segs := []*domain.Segment{
		{ID: "seg-1", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending, StartSeconds: 0},
		{ID: "seg-2", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending, StartSeconds: 10},
		{ID: "seg-3", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending, StartSeconds: 20},
	}
	store := newFakeStore(segs...)
	provider := &fakeProvider{result: &DispatchResult{Text: "ok"}}
	notifier := &fakeNotifier{}

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2

	m := NewManager(cfg, store, fakeBlobStore{}, provider, passthroughBreaker{}, notifier, nil, testLogger(t))
	m.EnqueueSegments(segs, "task-1")

	processed, remaining, err := m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected only maxConcurrent=2 jobs dispatched, got %d", processed)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 job left due, got %d", remaining)
	}
}

func TestReconciliationDiscardsTerminalSegmentJobs(t *testing.T) {
	seg := &domain.Segment{ID: "seg-1", TaskID: "task-1", BlobPath: "p", Status: domain.SegmentPending}
	store := newFakeStore(seg)
	provider := &fakeProvider{result: &DispatchResult{Text: "ok"}}
	notifier := &fakeNotifier{}

	m := NewManager(DefaultConfig(), store, fakeBlobStore{}, provider, passthroughBreaker{}, notifier, nil, testLogger(t))
	m.EnqueueSegment(seg, 1)

	// Segment completes out-of-band (e.g. inbound webhook) before the
	// queue ever dispatches its Job.
	completedText := "already done"
	_ = store.UpdateSegment(context.Background(), "seg-1", domain.SegmentPatch{
		Status:         segmentStatusPtr(domain.SegmentCompleted),
		TranscriptText: &completedText,
	})

	processed, _, err := m.ForceProcess(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected reconciliation to discard the stale job, got processed=%d", processed)
	}
}
