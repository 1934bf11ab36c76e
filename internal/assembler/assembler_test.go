package assembler

import (
	"testing"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir()+"/test.log", logger.LevelDebug, false)
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}
	return l
}

func text(s string) *string { return &s }

func completedSegment(id string, start, end float64, txt string) *domain.Segment {
	return &domain.Segment{
		ID:             id,
		Status:         domain.SegmentCompleted,
		StartSeconds:   start,
		EndSeconds:     end,
		TranscriptText: text(txt),
	}
}

func TestAssembleHappyTwoSegments(t *testing.T) {
	a := New(testLogger(t))
	segs := []*domain.Segment{
		completedSegment("seg-2", 15, 30, "  world"),
		completedSegment("seg-1", 0, 15, "hello  "),
	}

	result, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", result.Text)
	}
	if result.Metadata.TotalDuration != 30 {
		t.Fatalf("expected total duration 30, got %v", result.Metadata.TotalDuration)
	}
}

func TestAssembleFiltersFailedAndEmptySegments(t *testing.T) {
	a := New(testLogger(t))
	failed := completedSegment("seg-2", 10, 20, "ignored")
	failed.Status = domain.SegmentFailed
	empty := completedSegment("seg-3", 20, 30, "   ")

	segs := []*domain.Segment{
		completedSegment("seg-1", 0, 10, "kept"),
		failed,
		empty,
	}

	result, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "kept" {
		t.Fatalf("expected %q, got %q", "kept", result.Text)
	}
}

func TestAssembleEmptySetReturnsEmptyTranscriptError(t *testing.T) {
	a := New(testLogger(t))
	_, err := a.Assemble(nil)
	if err != domain.EmptyTranscriptError {
		t.Fatalf("expected EmptyTranscriptError, got %v", err)
	}
}

func TestAssembleSingleSegmentBoundary(t *testing.T) {
	a := New(testLogger(t))
	segs := []*domain.Segment{completedSegment("seg-1", 0, 10, "solo transcript")}

	result, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "solo transcript" {
		t.Fatalf("expected the single segment's transcript unchanged, got %q", result.Text)
	}
}

func TestAssembleIdempotence(t *testing.T) {
	a := New(testLogger(t))
	segs := []*domain.Segment{
		completedSegment("seg-1", 0, 15, "hello"),
		completedSegment("seg-2", 15, 30, "world"),
	}

	r1, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.Text != r2.Text {
		t.Fatalf("assembling twice produced different text: %q vs %q", r1.Text, r2.Text)
	}
}

func TestAssembleGapAndOverlapDoNotFailAssembly(t *testing.T) {
	a := New(testLogger(t))
	segs := []*domain.Segment{
		completedSegment("seg-1", 0, 10, "first"),
		completedSegment("seg-2", 12, 20, "gapped"), // 2s gap, > 1.0s threshold
		completedSegment("seg-3", 19, 30, "overlapped"),
	}

	result, err := a.Assemble(segs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "first gapped overlapped" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestCheckReady(t *testing.T) {
	now := time.Now()
	_ = now

	pending := &domain.Segment{ID: "seg-1", Status: domain.SegmentPending}
	done := &domain.Segment{ID: "seg-2", Status: domain.SegmentCompleted}
	failed := &domain.Segment{ID: "seg-3", Status: domain.SegmentFailed}

	r := CheckReady([]*domain.Segment{done, failed})
	if !r.Ready {
		t.Fatalf("expected ready when only completed/failed segments remain, got missing=%v", r.MissingSegmentIDs)
	}

	r = CheckReady([]*domain.Segment{done, pending})
	if r.Ready {
		t.Fatal("expected not ready while a segment is still pending")
	}
	if len(r.MissingSegmentIDs) != 1 || r.MissingSegmentIDs[0] != "seg-1" {
		t.Fatalf("expected missing=[seg-1], got %v", r.MissingSegmentIDs)
	}
}
