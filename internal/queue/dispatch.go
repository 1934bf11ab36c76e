package queue

import (
	"context"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

// executeJob runs one job's dispatch attempt end to end (§4.1's per-job
// execution steps) and always leaves the job in a terminal-for-this-pass
// state: completed, failed, or retrying.
func (m *Manager) executeJob(ctx context.Context, job *domain.Job) {
	job.Attempts++
	if m.metrics != nil {
		m.metrics.RecordDispatched()
	}

	if err := m.store.UpdateSegment(ctx, job.SegmentID, domain.SegmentPatch{
		Status: segmentStatusPtr(domain.SegmentProcessing),
	}); err != nil {
		m.handleFailure(ctx, job, err)
		return
	}

	reader, err := m.blobs.Reader(job.BlobPath)
	if err != nil {
		m.handleFailure(ctx, job, domain.NewExternalServiceError("blob store", err))
		return
	}
	defer reader.Close()

	var result *DispatchResult
	dispatchErr := m.breaker.Execute(func() error {
		r, err := m.provider.Dispatch(ctx, job.SegmentID, reader, "audio/mpeg")
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if dispatchErr != nil {
		m.handleFailure(ctx, job, dispatchErr)
		return
	}

	m.handleDispatchResult(ctx, job, result)
}

func (m *Manager) handleDispatchResult(ctx context.Context, job *domain.Job, result *DispatchResult) {
	if result.ProviderRequestID != "" {
		// Asynchronous mode: the provider will deliver the transcript via
		// webhook later. The job's work is done; the segment stays
		// "processing" until the inbound webhook handler completes it.
		if err := m.store.UpdateSegment(ctx, job.SegmentID, domain.SegmentPatch{
			ProviderRequestID: &result.ProviderRequestID,
		}); err != nil {
			m.log.Error("failed to persist providerRequestId: %s", logger.Fields(
				"segmentId", job.SegmentID, "error", err))
		}
		m.finishProcessing(job, domain.JobCompleted)
		return
	}

	// Synchronous mode: the provider answered inline.
	now := time.Now()
	text := result.Text
	if err := m.store.UpdateSegment(ctx, job.SegmentID, domain.SegmentPatch{
		Status:         segmentStatusPtr(domain.SegmentCompleted),
		TranscriptText: &text,
		CompletedAt:    &now,
	}); err != nil {
		m.log.Error("failed to persist inline transcript: %s", logger.Fields(
			"segmentId", job.SegmentID, "error", err))
	}
	m.finishProcessing(job, domain.JobCompleted)
	if m.metrics != nil {
		m.metrics.RecordCompleted()
	}

	if err := m.notifier.OnSegmentTerminal(ctx, job.TaskID); err != nil {
		m.log.Error("completion notification failed: %s", logger.Fields(
			"taskId", job.TaskID, "error", err))
	}
}

func (m *Manager) handleFailure(ctx context.Context, job *domain.Job, cause error) {
	job.LastError = cause.Error()

	if classifyError(cause) && job.Attempts < job.MaxAttempts {
		delay := m.retryDelayFor(job.Attempts)
		m.mu.Lock()
		job.Status = domain.JobRetrying
		job.ScheduledAt = time.Now().Add(delay)
		m.processing--
		m.mu.Unlock()

		if err := m.store.UpdateSegment(ctx, job.SegmentID, domain.SegmentPatch{
			Status: segmentStatusPtr(domain.SegmentPending),
		}); err != nil {
			m.log.Error("failed to reset segment to pending for retry: %s", logger.Fields(
				"segmentId", job.SegmentID, "error", err))
		}

		m.log.Warn("segment dispatch failed, retrying: %s", logger.Fields(
			"segmentId", job.SegmentID, "attempt", job.Attempts, "delay", delay, "error", job.LastError))
		if m.metrics != nil {
			m.metrics.RecordRetried()
		}
		return
	}

	errMsg := cause.Error()
	now := time.Now()
	if err := m.store.UpdateSegment(ctx, job.SegmentID, domain.SegmentPatch{
		Status:       segmentStatusPtr(domain.SegmentFailed),
		ErrorMessage: &errMsg,
		CompletedAt:  &now,
	}); err != nil {
		m.log.Error("failed to persist segment failure: %s", logger.Fields(
			"segmentId", job.SegmentID, "error", err))
	}
	m.finishProcessing(job, domain.JobFailed)
	if m.metrics != nil {
		m.metrics.RecordFailed()
	}

	if err := m.notifier.OnSegmentTerminal(ctx, job.TaskID); err != nil {
		m.log.Error("completion notification failed: %s", logger.Fields(
			"taskId", job.TaskID, "error", err))
	}
}

func (m *Manager) retryDelayFor(attempt int) time.Duration {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	return cfg.nextDelay(attempt)
}

func segmentStatusPtr(s domain.SegmentStatus) *domain.SegmentStatus { return &s }
