package routes

import (
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PrefetchHandler queues a background resolve so a later search is served
// from the cache.
func PrefetchHandler(c echo.Context) error {
	type prefetchBody struct {
		Topic     string `json:"q" validate:"required,max=200"`
		Depth     int    `json:"depth" validate:"min=1"`
		Language  string `json:"lang" validate:"required,max=16"`
		TimeRange string `json:"timeRange" validate:"max=16"`
		Force     bool   `json:"force"`
	}

	type prefetchResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlationId,omitempty"`
	}

	data := &prefetchBody{Depth: DefaultDepth, Language: DefaultLanguage}
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, prefetchResponse{Message: "Invalid request body"})
	}
	data.Topic = strings.TrimSpace(data.Topic)
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, prefetchResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	if app.Jobs == nil {
		return c.JSON(http.StatusServiceUnavailable, prefetchResponse{Message: "Background queue is not configured"})
	}

	job, err := queue.NewResolveJob(data.Topic, data.Depth, data.Language, data.TimeRange, data.Force)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, prefetchResponse{Message: err.Error()})
	}
	if err := app.Jobs.PublishResolveJob(c.Request().Context(), job); err != nil {
		logger.Error("[Server] Failed to queue prefetch", "topic", data.Topic, "err", err)
		return c.JSON(http.StatusInternalServerError, prefetchResponse{Message: "Failed to queue prefetch"})
	}

	return c.JSON(http.StatusAccepted, prefetchResponse{
		Message:       "Prefetch queued",
		CorrelationID: job.CorrelationID,
	})
}
