// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and defines the API route groups,
// mapping specific paths to their corresponding handlers. Routes that
// touch the database are mounted behind a transaction scope, so
// handlers never open or commit transactions themselves.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/ormscope/ormscope/internal/handler"
	"github.com/ormscope/ormscope/internal/middleware"
	"github.com/ormscope/ormscope/internal/server"
)

// Init builds the Echo instance: global middlewares in order, the
// global error handler, and all route groups.
func Init(s *server.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	mws := middleware.NewMiddlewares(s)
	e.HTTPErrorHandler = mws.Global.GlobalErrorHandler

	// Order matters: the request id must exist before the logger is
	// enhanced, and the New Relic transaction must exist before trace
	// correlation fields can be attached to it.
	e.Use(middleware.RequestID())
	e.Use(mws.Tracing.NewRelicMiddleware())
	e.Use(mws.ContextEnhancer.EnhanceContext())
	e.Use(mws.Global.CORS())
	e.Use(mws.Global.RequestLogger())
	e.Use(mws.Global.Recover())
	e.Use(mws.Global.Secure())
	e.Use(mws.Tracing.EnhanceTracing())

	h := handler.NewHandlers(s)

	registerSystemRoutes(e, h)
	registerUserRoutes(e, s, h, mws)

	return e
}
