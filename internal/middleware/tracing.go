package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/integrations/nrecho-v4"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/ormscope/ormscope/internal/scope"
	"github.com/ormscope/ormscope/internal/server"
)

// TracingMiddleware owns the New Relic related Echo middleware. It has
// two layers: NewRelicMiddleware installs transaction handling into
// Echo, EnhanceTracing adds custom attributes and notices errors.
//
// nrApp is nil when New Relic is disabled; both layers degrade into
// no-ops then.
type TracingMiddleware struct {
	server *server.Server
	nrApp  *newrelic.Application
}

func NewTracingMiddleware(s *server.Server, nrApp *newrelic.Application) *TracingMiddleware {
	return &TracingMiddleware{
		server: s,
		nrApp:  nrApp,
	}
}

// NewRelicMiddleware returns the New Relic Echo middleware, which
// starts a transaction per request and stores it in the request
// context. This is what makes newrelic.FromContext work downstream.
func (tm *TracingMiddleware) NewRelicMiddleware() echo.MiddlewareFunc {
	if tm.nrApp == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	return nrecho.Middleware(tm.nrApp)
}

// EnhanceTracing adds custom attributes to New Relic transactions:
// client info and request id before the handler, the database
// transaction's user and mode plus the response status after it. It
// also notices handler errors with nrpkgerrors so stack traces come
// through.
func (tm *TracingMiddleware) EnhanceTracing() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			txn := newrelic.FromContext(c.Request().Context())
			if txn == nil {
				return next(c)
			}

			txn.AddAttribute("http.real_ip", c.RealIP())
			txn.AddAttribute("http.user_agent", c.Request().UserAgent())

			if requestID := GetRequestID(c); requestID != "" {
				txn.AddAttribute("request.id", requestID)
			}

			err := next(c)

			// The transaction scope has run by now; if the request
			// executed inside a database transaction, record who it
			// ran as.
			if tx, txErr := scope.TxFrom(c); txErr == nil {
				txn.AddAttribute("db.user_id", tx.User())
				txn.AddAttribute("db.readonly", tx.ReadOnly())
			}

			if err != nil {
				txn.NoticeError(nrpkgerrors.Wrap(err))
			}

			txn.AddAttribute("http.status_code", c.Response().Status)

			return err
		}
	}
}
