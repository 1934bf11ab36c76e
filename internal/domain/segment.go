package domain

import "time"

// Segment is one contiguous time-range slice of a Task's audio, transcribed
// independently by the provider.
type Segment struct {
	ID       string
	TaskID   string
	BlobPath string

	StartSeconds float64
	EndSeconds   float64

	Status SegmentStatus

	TranscriptText    *string
	ProviderRequestID *string
	ErrorMessage      *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Duration returns the segment's time-range length in seconds.
func (s *Segment) Duration() float64 {
	return s.EndSeconds - s.StartSeconds
}

// SegmentPatch carries a partial update for UpdateSegment.
type SegmentPatch struct {
	Status            *SegmentStatus
	TranscriptText    *string
	ProviderRequestID *string
	ErrorMessage      *string
	CompletedAt       *time.Time
}
