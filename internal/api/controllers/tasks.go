package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/transcribebridge/bridge/internal/app"
	"github.com/transcribebridge/bridge/internal/domain"
)

type TaskController struct {
	App *app.Context
}

type createSegmentInput struct {
	BlobPath     string  `json:"blobPath"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
}

type createTaskInput struct {
	ClientCallbackURL string               `json:"clientCallbackUrl"`
	OriginalFilename  string               `json:"originalFilename"`
	Segments          []createSegmentInput `json:"segments"`
}

type taskResponse struct {
	TaskID            string  `json:"taskId"`
	Status            string  `json:"status"`
	TotalSegments     int     `json:"totalSegments"`
	CompletedSegments int     `json:"completedSegments"`
	FinalTranscript   *string `json:"finalTranscript,omitempty"`
	ErrorMessage      *string `json:"errorMessage,omitempty"`
}

// Create handles POST /tasks: creates a Task and its Segments, then
// enqueues the segments on the Segment Queue.
func (ctrl *TaskController) Create(c *echo.Context) error {
	var in createTaskInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(domain.NewValidationError("invalid request body", nil)))
	}

	if in.ClientCallbackURL == "" || len(in.Segments) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse(domain.NewValidationError(
			"clientCallbackUrl and at least one segment are required", nil)))
	}

	task := &domain.Task{
		ID:                domain.NewID(),
		ClientCallbackURL: in.ClientCallbackURL,
		OriginalFilename:  in.OriginalFilename,
		Status:            domain.TaskProcessing,
		TotalSegments:     len(in.Segments),
	}

	ctx := c.Request().Context()
	if err := ctrl.App.Store.CreateTask(ctx, task); err != nil {
		ae := domain.AsAppError(err)
		return c.JSON(ae.HTTPStatus(), errorResponse(ae))
	}

	segments := make([]*domain.Segment, 0, len(in.Segments))
	for _, s := range in.Segments {
		segments = append(segments, &domain.Segment{
			ID:           domain.NewID(),
			TaskID:       task.ID,
			BlobPath:     s.BlobPath,
			StartSeconds: s.StartSeconds,
			EndSeconds:   s.EndSeconds,
			Status:       domain.SegmentPending,
		})
	}

	if err := ctrl.App.Store.CreateSegments(ctx, segments); err != nil {
		ae := domain.AsAppError(err)
		return c.JSON(ae.HTTPStatus(), errorResponse(ae))
	}

	ctrl.App.Queue.EnqueueSegments(segments, task.ID)

	return c.JSON(http.StatusAccepted, toTaskResponse(task))
}

// Get handles GET /tasks/:id.
func (ctrl *TaskController) Get(c *echo.Context) error {
	id := c.Param("id")
	task, err := ctrl.App.Store.GetTask(c.Request().Context(), id)
	if err != nil {
		nf := domain.NewNotFoundError("task", id)
		return c.JSON(nf.HTTPStatus(), errorResponse(nf))
	}
	return c.JSON(http.StatusOK, toTaskResponse(task))
}

func toTaskResponse(t *domain.Task) taskResponse {
	return taskResponse{
		TaskID:            t.ID,
		Status:            string(t.Status),
		TotalSegments:     t.TotalSegments,
		CompletedSegments: t.CompletedSegments,
		FinalTranscript:   t.FinalTranscript,
		ErrorMessage:      t.ErrorMessage,
	}
}

func errorResponse(ae *domain.AppError) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    ae.Code,
			"message": ae.Message,
		},
	}
}
