package store

import (
	"database/sql"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
)

// taskDBO maps to the tasks table, using sql.Null* for every column that
// is nil before a task reaches a terminal state.
type taskDBO struct {
	ID                 string
	ClientCallbackURL  string
	OriginalFilename   string
	Status             string
	TotalSegments      int
	CompletedSegments  int
	FinalTranscript    sql.NullString
	ErrorMessage       sql.NullString
	DeliveryStatus     sql.NullString
	DeliveryAttempt    int
	CreatedAt          time.Time
	CompletedAt        sql.NullTime
}

func (t *taskDBO) toDomain() *domain.Task {
	task := &domain.Task{
		ID:                t.ID,
		ClientCallbackURL: t.ClientCallbackURL,
		OriginalFilename:  t.OriginalFilename,
		Status:            domain.TaskStatus(t.Status),
		TotalSegments:     t.TotalSegments,
		CompletedSegments: t.CompletedSegments,
		DeliveryAttempt:   t.DeliveryAttempt,
		CreatedAt:         t.CreatedAt,
	}
	if t.FinalTranscript.Valid {
		task.FinalTranscript = &t.FinalTranscript.String
	}
	if t.ErrorMessage.Valid {
		task.ErrorMessage = &t.ErrorMessage.String
	}
	if t.DeliveryStatus.Valid {
		task.DeliveryStatus = &t.DeliveryStatus.String
	}
	if t.CompletedAt.Valid {
		task.CompletedAt = &t.CompletedAt.Time
	}
	return task
}

func fromDomainTask(t *domain.Task) taskDBO {
	dbo := taskDBO{
		ID:                t.ID,
		ClientCallbackURL: t.ClientCallbackURL,
		OriginalFilename:  t.OriginalFilename,
		Status:            string(t.Status),
		TotalSegments:     t.TotalSegments,
		CompletedSegments: t.CompletedSegments,
		DeliveryAttempt:   t.DeliveryAttempt,
		CreatedAt:         t.CreatedAt,
	}
	if t.FinalTranscript != nil {
		dbo.FinalTranscript = sql.NullString{String: *t.FinalTranscript, Valid: true}
	}
	if t.ErrorMessage != nil {
		dbo.ErrorMessage = sql.NullString{String: *t.ErrorMessage, Valid: true}
	}
	if t.DeliveryStatus != nil {
		dbo.DeliveryStatus = sql.NullString{String: *t.DeliveryStatus, Valid: true}
	}
	if t.CompletedAt != nil {
		dbo.CompletedAt = sql.NullTime{Time: *t.CompletedAt, Valid: true}
	}
	return dbo
}

// segmentDBO maps to the segments table.
type segmentDBO struct {
	ID                string
	TaskID            string
	BlobPath          string
	StartSeconds      float64
	EndSeconds        float64
	Status            string
	TranscriptText    sql.NullString
	ProviderRequestID sql.NullString
	ErrorMessage      sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       sql.NullTime
}

func (s *segmentDBO) toDomain() *domain.Segment {
	seg := &domain.Segment{
		ID:           s.ID,
		TaskID:       s.TaskID,
		BlobPath:     s.BlobPath,
		StartSeconds: s.StartSeconds,
		EndSeconds:   s.EndSeconds,
		Status:       domain.SegmentStatus(s.Status),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.TranscriptText.Valid {
		seg.TranscriptText = &s.TranscriptText.String
	}
	if s.ProviderRequestID.Valid {
		seg.ProviderRequestID = &s.ProviderRequestID.String
	}
	if s.ErrorMessage.Valid {
		seg.ErrorMessage = &s.ErrorMessage.String
	}
	if s.CompletedAt.Valid {
		seg.CompletedAt = &s.CompletedAt.Time
	}
	return seg
}

func fromDomainSegment(s *domain.Segment) segmentDBO {
	dbo := segmentDBO{
		ID:           s.ID,
		TaskID:       s.TaskID,
		BlobPath:     s.BlobPath,
		StartSeconds: s.StartSeconds,
		EndSeconds:   s.EndSeconds,
		Status:       string(s.Status),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.TranscriptText != nil {
		dbo.TranscriptText = sql.NullString{String: *s.TranscriptText, Valid: true}
	}
	if s.ProviderRequestID != nil {
		dbo.ProviderRequestID = sql.NullString{String: *s.ProviderRequestID, Valid: true}
	}
	if s.ErrorMessage != nil {
		dbo.ErrorMessage = sql.NullString{String: *s.ErrorMessage, Valid: true}
	}
	if s.CompletedAt != nil {
		dbo.CompletedAt = sql.NullTime{Time: *s.CompletedAt, Valid: true}
	}
	return dbo
}
