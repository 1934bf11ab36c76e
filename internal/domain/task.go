package domain

import "time"

// Task represents a single client transcription request, fanned out into
// one or more Segments.
type Task struct {
	ID                string
	ClientCallbackURL string
	OriginalFilename  string
	Status            TaskStatus

	TotalSegments     int
	CompletedSegments int

	FinalTranscript *string
	ErrorMessage    *string

	DeliveryStatus  *string
	DeliveryAttempt int

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TaskPatch carries a partial update for UpdateTask. Nil fields are left
// untouched by the store.
type TaskPatch struct {
	Status            *TaskStatus
	TotalSegments     *int
	CompletedSegments *int
	FinalTranscript   *string
	ErrorMessage      *string
	DeliveryStatus    *string
	DeliveryAttempt   *int
	CompletedAt       *time.Time

	// ExpectedStatus, when set, makes UpdateTask a compare-and-set: the
	// patch only applies if the task's current status equals it. Used by
	// the Completion Coordinator to guard the processing->terminal
	// transition against duplicate webhook arrivals.
	ExpectedStatus *TaskStatus
}
