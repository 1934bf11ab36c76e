package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/transcribebridge/bridge/internal/domain"
)

const segmentColumns = `id, task_id, blob_path, start_seconds, end_seconds, status,
	transcript_text, provider_request_id, error_message, created_at, updated_at, completed_at`

func scanSegment(row pgx.Row) (*domain.Segment, error) {
	var s segmentDBO
	err := row.Scan(&s.ID, &s.TaskID, &s.BlobPath, &s.StartSeconds, &s.EndSeconds, &s.Status,
		&s.TranscriptText, &s.ProviderRequestID, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("segment", "")
		}
		return nil, domain.NewDatabaseError("scanSegment", err)
	}
	return s.toDomain(), nil
}

// CreateSegments inserts every segment for a task in a single transaction,
// so a crash mid-fan-out never leaves a task with a partial segment set.
func (s *Store) CreateSegments(ctx context.Context, segments []*domain.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NewDatabaseError("CreateSegments", err)
	}
	defer tx.Rollback(ctx)

	for _, seg := range segments {
		dbo := fromDomainSegment(seg)
		_, err := tx.Exec(ctx, `
			INSERT INTO segments (`+segmentColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			dbo.ID, dbo.TaskID, dbo.BlobPath, dbo.StartSeconds, dbo.EndSeconds, dbo.Status,
			dbo.TranscriptText, dbo.ProviderRequestID, dbo.ErrorMessage,
			dbo.CreatedAt, dbo.UpdatedAt, dbo.CompletedAt)
		if err != nil {
			return domain.NewDatabaseError("CreateSegments", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewDatabaseError("CreateSegments", err)
	}
	return nil
}

func (s *Store) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	return scanSegment(row)
}

// FindSegmentByProviderRequestID is used by the Inbound Webhook Handler to
// resolve a provider callback to the segment that originated it.
func (s *Store) FindSegmentByProviderRequestID(ctx context.Context, requestID string) (*domain.Segment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE provider_request_id = $1`, requestID)
	return scanSegment(row)
}

func (s *Store) ListSegmentsByTask(ctx context.Context, taskID string) ([]*domain.Segment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+segmentColumns+` FROM segments WHERE task_id = $1 ORDER BY start_seconds ASC`, taskID)
	if err != nil {
		return nil, domain.NewDatabaseError("ListSegmentsByTask", err)
	}
	defer rows.Close()

	var out []*domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// ListPendingSegments returns every segment not yet in a terminal state,
// across all tasks. The Segment Queue calls this on startup (and on every
// reconciliation pump) to rebuild its in-memory Job set from durable state,
// since the in-process queue does not survive a serverless cold start.
func (s *Store) ListPendingSegments(ctx context.Context, limit int) ([]*domain.Segment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+segmentColumns+` FROM segments
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at ASC
		LIMIT $3`,
		string(domain.SegmentCompleted), string(domain.SegmentFailed), limit)
	if err != nil {
		return nil, domain.NewDatabaseError("ListPendingSegments", err)
	}
	defer rows.Close()

	var out []*domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// UpdateSegment applies patch to the segment identified by id.
func (s *Store) UpdateSegment(ctx context.Context, id string, patch domain.SegmentPatch) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(string(*patch.Status)))
	}
	if patch.TranscriptText != nil {
		sets = append(sets, "transcript_text = "+arg(*patch.TranscriptText))
	}
	if patch.ProviderRequestID != nil {
		sets = append(sets, "provider_request_id = "+arg(*patch.ProviderRequestID))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*patch.CompletedAt))
	}

	query := "UPDATE segments SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = " + arg(id)

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.NewDatabaseError("UpdateSegment", err)
	}
	return nil
}
