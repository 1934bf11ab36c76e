package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/transcribebridge/bridge/internal/api/controllers"
	"github.com/transcribebridge/bridge/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	tasks := &controllers.TaskController{App: app}
	webhooks := &controllers.WebhookController{App: app}
	queue := &controllers.QueueController{App: app}
	cleanup := &controllers.CleanupController{App: app}

	e.POST("/tasks", tasks.Create)
	e.GET("/tasks/:id", tasks.Get)

	e.POST("/webhooks/provider", webhooks.Receive)

	e.POST("/queue/pump", queue.Pump)
	e.GET("/queue/stats", queue.Stats)

	e.POST("/cleanup", cleanup.Run)
}
