package routes

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// TopicsHandler lists the topic registry of the cache.
func TopicsHandler(c echo.Context) error {
	type topicResponse struct {
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		Graphs    int       `json:"graphs"`
	}

	app := c.(*middleware.AppContext).App
	if app.Topics == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "Topic listing is not supported by this cache"})
	}

	topics, err := app.Topics.ListTopics(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	res := make([]topicResponse, 0, len(topics))
	for _, t := range topics {
		res = append(res, topicResponse{Name: t.Name, CreatedAt: t.CreatedAt, Graphs: t.Graphs})
	}
	return c.JSON(http.StatusOK, res)
}
