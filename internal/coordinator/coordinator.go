// Package coordinator implements the Completion Coordinator: on every
// segment terminal transition it decides whether the owning task is now
// done, and if so drives assembly and delivery exactly once.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/transcribebridge/bridge/internal/assembler"
	"github.com/transcribebridge/bridge/internal/domain"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

// Store is the narrow slice of the Task/Segment Store the coordinator
// needs.
type Store interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListSegmentsByTask(ctx context.Context, taskID string) ([]*domain.Segment, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (bool, error)
}

// Deliverer is the narrow slice of the Client Webhook Deliverer the
// coordinator needs; delivery always runs in the background so a slow
// client endpoint never blocks the webhook callback that triggered it.
type Deliverer interface {
	Deliver(ctx context.Context, taskID, url string, payload *domain.WebhookPayload) *domain.DeliveryResult
}

type Config struct {
	// Lenient, when true, treats a task with some failed segments as a
	// success assembled from the completed segments alone. Off by
	// default (§9's Open Question i).
	Lenient bool
}

type Coordinator struct {
	store     Store
	assembler *assembler.Assembler
	deliverer Deliverer
	cfg       Config
	log       *logger.Logger
}

func New(store Store, asm *assembler.Assembler, deliverer Deliverer, cfg Config, log *logger.Logger) *Coordinator {
	return &Coordinator{store: store, assembler: asm, deliverer: deliverer, cfg: cfg, log: log}
}

// OnSegmentTerminal is invoked after any segment reaches completed or
// failed. It is idempotent: concurrent calls for the same task race
// harmlessly because the terminal task-status transition is a
// compare-and-set, so only one caller ever wins the right to deliver.
func (c *Coordinator) OnSegmentTerminal(ctx context.Context, taskID string) error {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}

	segments, err := c.store.ListSegmentsByTask(ctx, taskID)
	if err != nil {
		return err
	}

	var completed, failed int
	for _, seg := range segments {
		switch seg.Status {
		case domain.SegmentCompleted:
			completed++
		case domain.SegmentFailed:
			failed++
		}
	}

	if _, err := c.store.UpdateTask(ctx, taskID, domain.TaskPatch{
		CompletedSegments: intPtr(completed),
	}); err != nil {
		return err
	}

	if completed+failed < task.TotalSegments {
		return nil // task still has segments in flight
	}

	now := time.Now()

	if failed > 0 && !c.cfg.Lenient {
		errMsg := fmt.Sprintf("%d segments failed to process", failed)
		won, err := c.store.UpdateTask(ctx, taskID, domain.TaskPatch{
			Status:         taskStatusPtr(domain.TaskFailed),
			ErrorMessage:   &errMsg,
			CompletedAt:    &now,
			ExpectedStatus: taskStatusPtr(domain.TaskProcessing),
		})
		if err != nil {
			return err
		}
		if !won {
			return nil // another caller already finalized this task
		}

		c.log.Warn("task failed: %s", logger.Fields("taskId", taskID, "failedSegments", failed))
		c.deliverFailure(task, errMsg)
		return nil
	}

	result, err := c.assembler.Assemble(segments)
	if err != nil {
		errMsg := err.Error()
		won, uerr := c.store.UpdateTask(ctx, taskID, domain.TaskPatch{
			Status:         taskStatusPtr(domain.TaskFailed),
			ErrorMessage:   &errMsg,
			CompletedAt:    &now,
			ExpectedStatus: taskStatusPtr(domain.TaskProcessing),
		})
		if uerr != nil {
			return uerr
		}
		if won {
			c.deliverFailure(task, errMsg)
		}
		return nil
	}

	won, err := c.store.UpdateTask(ctx, taskID, domain.TaskPatch{
		Status:          taskStatusPtr(domain.TaskCompleted),
		FinalTranscript: &result.Text,
		CompletedAt:     &now,
		ExpectedStatus:  taskStatusPtr(domain.TaskProcessing),
	})
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	c.log.Info("task completed: %s", logger.Fields("taskId", taskID, "segments", len(segments)))
	c.deliverSuccess(task, result, now)
	return nil
}

// recordDelivery summarizes a delivery's final outcome onto the task
// record, so an operator looking at a task later can see why a
// notification never landed and re-drive it (§4.4, §7). It never touches
// ErrorMessage, which belongs to the task's own processing outcome.
func (c *Coordinator) recordDelivery(taskID string, result *domain.DeliveryResult) {
	status := result.FinalStatus
	attempts := len(result.Attempts)
	if _, err := c.store.UpdateTask(context.Background(), taskID, domain.TaskPatch{
		DeliveryStatus:  &status,
		DeliveryAttempt: &attempts,
	}); err != nil {
		c.log.Warn("failed to record delivery outcome: %s", logger.Fields("taskId", taskID, "error", err.Error()))
	}
}

func (c *Coordinator) deliverSuccess(task *domain.Task, result *assembler.Result, completedAt time.Time) {
	processingMs := completedAt.Sub(task.CreatedAt).Milliseconds()
	payload := &domain.WebhookPayload{
		TaskID:           task.ID,
		Status:           "completed",
		OriginalFilename: task.OriginalFilename,
		CompletedAt:      completedAt,
		ProcessingTimeMs: &processingMs,
		Transcription:    &domain.TranscriptionBlock{Text: result.Text},
		Metadata: &domain.WebhookMetadata{
			TotalDuration: result.Metadata.TotalDuration,
			LanguageCode:  result.Metadata.LanguageCode,
			Confidence:    result.Metadata.Confidence,
			WordCount:     wordCount(result.Text),
			SegmentCount:  len(result.Segments),
		},
		IdempotencyKey: task.ID,
	}
	go func() {
		result := c.deliverer.Deliver(context.Background(), task.ID, task.ClientCallbackURL, payload)
		c.recordDelivery(task.ID, result)
	}()
}

func (c *Coordinator) deliverFailure(task *domain.Task, errMsg string) {
	payload := &domain.WebhookPayload{
		TaskID:           task.ID,
		Status:           "failed",
		OriginalFilename: task.OriginalFilename,
		CompletedAt:      time.Now(),
		Error:            errMsg,
		IdempotencyKey:   task.ID,
	}
	go func() {
		result := c.deliverer.Deliver(context.Background(), task.ID, task.ClientCallbackURL, payload)
		c.recordDelivery(task.ID, result)
	}()
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

func intPtr(v int) *int                           { return &v }
func taskStatusPtr(v domain.TaskStatus) *domain.TaskStatus { return &v }
