package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/transcribebridge/bridge/internal/app"
)

// QueueController exposes the Segment Queue's pump and stats as an HTTP
// surface, for callers that drive dispatch externally (a cron tick or a
// scheduled Lambda invocation) rather than via the long-running ticker in
// the serve command.
type QueueController struct {
	App *app.Context
}

type pumpResponse struct {
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

// Pump handles POST /queue/pump: forces one dispatch round and returns
// how many Jobs were dispatched versus still queued.
func (ctrl *QueueController) Pump(c *echo.Context) error {
	maxJobs := 0 // 0 means "use the queue's configured MaxConcurrent slot count"
	if raw := c.QueryParam("maxJobs"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			maxJobs = n
		}
	} else {
		var in struct {
			MaxJobs int `json:"maxJobs"`
		}
		if err := c.Bind(&in); err == nil {
			maxJobs = in.MaxJobs
		}
	}

	processed, remaining, err := ctrl.App.Queue.ForceProcess(c.Request().Context(), maxJobs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, pumpResponse{Processed: processed, Remaining: remaining})
}

// Stats handles GET /queue/stats: a read-only snapshot of the in-memory
// Job table, for operational visibility alongside the Prometheus metrics.
func (ctrl *QueueController) Stats(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Queue.Stats())
}
