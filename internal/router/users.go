package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ormscope/ormscope/internal/handler"
	"github.com/ormscope/ormscope/internal/middleware"
	"github.com/ormscope/ormscope/internal/scope"
	"github.com/ormscope/ormscope/internal/server"
)

// registerUserRoutes mounts the user CRUD endpoints behind the
// transaction scope. Each route declares what it needs from the scope:
// record parameters to resolve before the handler runs, and overrides
// for the defaults derived from the HTTP method and configuration.
func registerUserRoutes(r *echo.Echo, s *server.Server, h *handler.Handlers, mws *middleware.Middlewares) {
	sc := scope.New(s.Runtime,
		scope.WithDefaultUser(s.Config.ORM.DefaultUser),
		scope.WithMaxRetries(s.Config.ORM.MaxRetries),
		scope.WithLogger(*s.Logger),
		scope.WithRetryHook(mws.Telemetry.RecordTransactionRetry),
	)

	users := r.Group("/api/users")

	// GET runs read-only, so conflicting concurrent writes are retried
	// transparently up to the configured limit.
	users.GET("/:user",
		handler.Handle(h.Users.Handler, h.Users.GetUser, http.StatusOK,
			func() *handler.GetUserRequest { return &handler.GetUserRequest{} }),
		sc.Transaction(scope.Config{
			Params: []scope.ParamSpec{scope.Record("user", "res.user")},
		}),
	)

	users.GET("/batch/:users",
		handler.Handle(h.Users.Handler, h.Users.BatchUsers, http.StatusOK,
			func() *handler.BatchUsersRequest { return &handler.BatchUsersRequest{} }),
		sc.Transaction(scope.Config{
			Params: []scope.ParamSpec{scope.Records("users", "res.user")},
		}),
	)

	users.GET("/batch/:users/export",
		handler.HandleFile(h.Users.Handler, h.Users.ExportUsers, http.StatusOK,
			func() *handler.ExportUsersRequest { return &handler.ExportUsersRequest{} },
			"users.csv", "text/csv"),
		sc.Transaction(scope.Config{
			Params: []scope.ParamSpec{scope.Records("users", "res.user")},
		}),
	)

	// POST and DELETE run read-write; the scope commits after the
	// handler returns and hands queued tasks to the worker.
	users.POST("",
		handler.Handle(h.Users.Handler, h.Users.CreateUser, http.StatusCreated,
			func() *handler.CreateUserRequest { return &handler.CreateUserRequest{} }),
		sc.Transaction(scope.Config{
			Context: scope.Literal(map[string]any{"source": "api"}),
		}),
	)

	users.DELETE("/:user",
		handler.HandleNoContent(h.Users.Handler, h.Users.DeleteUser, http.StatusNoContent,
			func() *handler.DeleteUserRequest { return &handler.DeleteUserRequest{} }),
		sc.Transaction(scope.Config{
			Params: []scope.ParamSpec{scope.Record("user", "res.user")},
		}),
	)
}
