package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/ormscope/ormscope/internal/server"
)

// TelemetryMiddleware records New Relic custom events for
// transaction-layer incidents that default instrumentation cannot see.
type TelemetryMiddleware struct {
	server *server.Server
}

func NewTelemetryMiddleware(s *server.Server) *TelemetryMiddleware {
	return &TelemetryMiddleware{
		server: s,
	}
}

// RecordTransactionRetry records one retried transaction attempt. Wired
// into the transaction scope as its retry hook; a spike of these events
// means serialization pressure on the database.
func (t *TelemetryMiddleware) RecordTransactionRetry(c echo.Context, attempt int, err error) {
	if t.server.LoggerService != nil && t.server.LoggerService.GetApplication() != nil {
		t.server.LoggerService.GetApplication().RecordCustomEvent("TransactionRetry", map[string]interface{}{
			"endpoint": c.Path(),
			"method":   c.Request().Method,
			"attempt":  attempt,
			"error":    err.Error(),
		})
	}
}
