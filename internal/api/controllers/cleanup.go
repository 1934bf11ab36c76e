package controllers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/transcribebridge/bridge/internal/app"
)

// CleanupController retires finished queue bookkeeping and, in a later
// iteration, the blob store artifacts of completed tasks. Blob retention
// is an external concern (object lifecycle rules, a separate reaper) and
// is deliberately out of scope here; this endpoint only trims the
// in-memory Job table so a long-running server doesn't grow unbounded.
type CleanupController struct {
	App *app.Context
}

type cleanupInput struct {
	OlderThanHours int `json:"olderThanHours"`
}

type cleanupResponse struct {
	JobsRemoved int `json:"jobsRemoved"`
}

// Run handles POST /cleanup.
func (ctrl *CleanupController) Run(c *echo.Context) error {
	var in cleanupInput
	_ = c.Bind(&in) // absent/invalid body just falls back to the default window

	hours := in.OlderThanHours
	if hours <= 0 {
		hours = ctrl.App.Config.CleanupIntervalHours
	}

	removed := ctrl.App.Queue.CleanupOldJobs(time.Duration(hours) * time.Hour)
	return c.JSON(http.StatusOK, cleanupResponse{JobsRemoved: removed})
}
