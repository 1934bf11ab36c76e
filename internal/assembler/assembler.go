// Package assembler produces a deterministic, chronological transcript
// from a task's completed segments.
package assembler

import (
	"sort"
	"strings"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

const (
	gapWarnThresholdSeconds = 1.0
	defaultLanguageCode     = "en"
	defaultConfidence       = 0.9
)

// SegmentResult is one segment's contribution to the final transcript.
type SegmentResult struct {
	StartSeconds float64
	EndSeconds   float64
	Text         string
}

// Metadata summarizes the assembled transcript.
type Metadata struct {
	TotalDuration float64
	LanguageCode  string
	Confidence    float64
}

// Result is the Result Assembler's full output.
type Result struct {
	Text     string
	Segments []SegmentResult
	Metadata Metadata
}

type Assembler struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Assembler {
	return &Assembler{log: log}
}

// Assemble merges segments into a single chronological transcript. Segments
// not in domain.SegmentCompleted, or whose TranscriptText is nil/empty
// after trimming, are dropped. Returns domain.EmptyTranscriptError if
// nothing survives filtering.
func (a *Assembler) Assemble(segments []*domain.Segment) (*Result, error) {
	usable := make([]*domain.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Status != domain.SegmentCompleted {
			continue
		}
		if seg.TranscriptText == nil {
			continue
		}
		if strings.TrimSpace(*seg.TranscriptText) == "" {
			continue
		}
		usable = append(usable, seg)
	}

	if len(usable) == 0 {
		return nil, domain.EmptyTranscriptError
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].StartSeconds < usable[j].StartSeconds
	})

	parts := make([]string, 0, len(usable))
	results := make([]SegmentResult, 0, len(usable))
	minStart := usable[0].StartSeconds
	maxEnd := usable[0].EndSeconds

	for i, seg := range usable {
		text := strings.TrimSpace(*seg.TranscriptText)
		parts = append(parts, text)
		results = append(results, SegmentResult{
			StartSeconds: seg.StartSeconds,
			EndSeconds:   seg.EndSeconds,
			Text:         text,
		})

		if seg.StartSeconds < minStart {
			minStart = seg.StartSeconds
		}
		if seg.EndSeconds > maxEnd {
			maxEnd = seg.EndSeconds
		}

		if i == 0 {
			continue
		}
		prev := usable[i-1]
		gap := seg.StartSeconds - prev.EndSeconds
		switch {
		case gap > gapWarnThresholdSeconds:
			a.log.Warn("assembler: gap detected: %s", logger.Fields(
				"prevSegment", prev.ID, "nextSegment", seg.ID, "gapSeconds", gap))
		case gap < 0:
			a.log.Warn("assembler: overlap detected: %s", logger.Fields(
				"prevSegment", prev.ID, "nextSegment", seg.ID, "overlapSeconds", -gap))
		}
	}

	return &Result{
		Text:     strings.Join(parts, " "),
		Segments: results,
		Metadata: Metadata{
			TotalDuration: maxEnd - minStart,
			LanguageCode:  defaultLanguageCode,
			Confidence:    defaultConfidence,
		},
	}, nil
}

// Readiness reports whether every segment has reached a terminal state.
type Readiness struct {
	Ready             bool
	MissingSegmentIDs []string
}

// CheckReady reports readiness without mutating anything: a task is ready
// for assembly once no segment is still pending or processing. Failed
// segments never block readiness.
func CheckReady(segments []*domain.Segment) Readiness {
	var missing []string
	for _, seg := range segments {
		if seg.Status == domain.SegmentPending || seg.Status == domain.SegmentProcessing {
			missing = append(missing, seg.ID)
		}
	}
	return Readiness{Ready: len(missing) == 0, MissingSegmentIDs: missing}
}
