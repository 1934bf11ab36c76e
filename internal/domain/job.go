package domain

import "time"

// Job is the in-memory, queue-local scheduling handle for a Segment. The
// Segment record in the store is the durable truth; a Job is discarded
// whenever it disagrees with it.
type Job struct {
	JobID     string
	SegmentID string
	TaskID    string
	BlobPath  string

	Priority int

	Attempts    int
	MaxAttempts int

	Status JobStatus

	ScheduledAt time.Time
	LastError   string

	CreatedAt time.Time
}
