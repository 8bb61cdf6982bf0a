package middleware

import (
	"context"

	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/pkg/graph"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// GraphResolver is satisfied by *graph.GraphClient.
type GraphResolver interface {
	ResolveGraph(ctx context.Context, req graph.ResolveRequest) (*graph.Result, error)
}

// App holds the collaborators handlers need. Jobs and Topics may be nil when
// the server runs without a queue or on a backend without a topic listing.
type App struct {
	Graphs GraphResolver
	Jobs   queue.JobPublisher
	Topics store.TopicLister
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
