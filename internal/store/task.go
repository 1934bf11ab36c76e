package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/transcribebridge/bridge/internal/domain"
)

const taskColumns = `id, client_callback_url, original_filename, status, total_segments,
	completed_segments, final_transcript, error_message, delivery_status,
	delivery_attempt, created_at, completed_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t taskDBO
	err := row.Scan(&t.ID, &t.ClientCallbackURL, &t.OriginalFilename, &t.Status, &t.TotalSegments,
		&t.CompletedSegments, &t.FinalTranscript, &t.ErrorMessage, &t.DeliveryStatus,
		&t.DeliveryAttempt, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("task", "")
		}
		return nil, domain.NewDatabaseError("scanTask", err)
	}
	return t.toDomain(), nil
}

// CreateTask inserts a new task row in TaskProcessing with TotalSegments
// already known, per §3's task creation contract.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	dbo := fromDomainTask(t)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		dbo.ID, dbo.ClientCallbackURL, dbo.OriginalFilename, dbo.Status, dbo.TotalSegments,
		dbo.CompletedSegments, dbo.FinalTranscript, dbo.ErrorMessage, dbo.DeliveryStatus,
		dbo.DeliveryAttempt, dbo.CreatedAt, dbo.CompletedAt)
	if err != nil {
		return domain.NewDatabaseError("CreateTask", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// CountTasks returns the number of tasks, optionally filtered by status.
func (s *Store) CountTasks(ctx context.Context, status *domain.TaskStatus) (int, error) {
	var count int
	var err error
	if status != nil {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE status = $1`, string(*status)).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks`).Scan(&count)
	}
	if err != nil {
		return 0, domain.NewDatabaseError("CountTasks", err)
	}
	return count, nil
}

// UpdateTask applies patch to the task identified by id. When patch carries
// an ExpectedStatus, the update is a compare-and-set: it only applies, and
// only reports success, if the row's current status still matches — this
// is what lets the Completion Coordinator treat the final processing→terminal
// transition as idempotent under concurrent webhook deliveries (§4.2).
func (s *Store) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (bool, error) {
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(string(*patch.Status)))
	}
	if patch.CompletedSegments != nil {
		sets = append(sets, "completed_segments = "+arg(*patch.CompletedSegments))
	}
	if patch.FinalTranscript != nil {
		sets = append(sets, "final_transcript = "+arg(*patch.FinalTranscript))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.DeliveryStatus != nil {
		sets = append(sets, "delivery_status = "+arg(*patch.DeliveryStatus))
	}
	if patch.DeliveryAttempt != nil {
		sets = append(sets, "delivery_attempt = "+arg(*patch.DeliveryAttempt))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*patch.CompletedAt))
	}

	if len(sets) == 0 {
		return true, nil
	}

	query := "UPDATE tasks SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = " + arg(id)
	if patch.ExpectedStatus != nil {
		query += " AND status = " + arg(string(*patch.ExpectedStatus))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, domain.NewDatabaseError("UpdateTask", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementCompletedSegments atomically bumps a task's completed_segments
// counter and returns the post-increment value, so the caller can compare
// it against TotalSegments without a separate read-modify-write race.
func (s *Store) IncrementCompletedSegments(ctx context.Context, taskID string) (int, error) {
	var completed int
	err := s.pool.QueryRow(ctx, `
		UPDATE tasks SET completed_segments = completed_segments + 1
		WHERE id = $1
		RETURNING completed_segments`, taskID).Scan(&completed)
	if err != nil {
		return 0, domain.NewDatabaseError("IncrementCompletedSegments", err)
	}
	return completed, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
