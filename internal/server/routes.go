package server

import (
	"net/http"

	"github.com/OFFIS-RIT/newsgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, metricsHandler http.Handler) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	apiRoutes := e.Group("/api")

	apiRoutes.GET("/search", routes.SearchHandler)
	apiRoutes.POST("/prefetch", routes.PrefetchHandler)
	apiRoutes.GET("/topics", routes.TopicsHandler)
}
