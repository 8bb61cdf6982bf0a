package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	DefaultTopic    = "SpaceX"
	DefaultDepth    = 3
	DefaultLanguage = "en"
)

type searchParams struct {
	Topic     string `query:"q" validate:"required,max=200"`
	APIKey    string `query:"key"`
	Depth     int    `query:"depth" validate:"min=1"`
	Language  string `query:"lang" validate:"required,max=16"`
	TimeRange string `query:"timeRange" validate:"max=16"`
	BaseURL   string `query:"baseUrl" validate:"omitempty,url"`
}

// SearchHandler answers GET /api/search with the graph for the requested
// topic, serving it from the cache when possible.
func SearchHandler(c echo.Context) error {
	params := &searchParams{
		Topic:    DefaultTopic,
		Depth:    DefaultDepth,
		Language: DefaultLanguage,
	}
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	params.Topic = strings.TrimSpace(params.Topic)
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	res, err := app.Graphs.ResolveGraph(ctx, graph.ResolveRequest{
		Topic:     params.Topic,
		APIKey:    params.APIKey,
		Depth:     params.Depth,
		Language:  params.Language,
		TimeRange: params.TimeRange,
		BaseURL:   params.BaseURL,
	})
	if err != nil {
		return graphError(c, err)
	}

	if res.Cached {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return c.JSONBlob(http.StatusOK, []byte(res.Raw))
}

func graphError(c echo.Context, err error) error {
	if errors.Is(err, graph.ErrNoResults) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No articles found"})
	}
	if errors.Is(err, graph.ErrInvalidDepth) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	logger.Error("[Server] Failed to resolve graph", "err", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
