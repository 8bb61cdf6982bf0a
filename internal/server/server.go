package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	mid "github.com/OFFIS-RIT/newsgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance with all middleware and routes. metricsHandler
// may be nil, in which case /metrics is not served.
func New(app *mid.App, metricsHandler http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURIPath:  true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Warn("[Server] Request", "method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency, "err", v.Error)
				return nil
			}
			logger.Info("[Server] Request", "method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e, metricsHandler)
	return e
}

// Run serves e on port until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, port string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
		return err
	}
	return nil
}
