package domain

// TaskStatus tracks the lifecycle of a transcription task.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// SegmentStatus tracks the lifecycle of a single audio segment.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentProcessing SegmentStatus = "processing"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

// JobStatus tracks the transient, in-memory handle for a Segment.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// IsTerminal reports whether a segment status cannot transition further.
func (s SegmentStatus) IsTerminal() bool {
	return s == SegmentCompleted || s == SegmentFailed
}

// IsTerminal reports whether a task status cannot transition further.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}
