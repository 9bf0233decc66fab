package handler

import (
	"github.com/ormscope/ormscope/internal/server"
)

// Handlers is a container that groups all HTTP handlers.
//
// Keeping them in a single struct keeps router setup clean: you pass
// one object around instead of many.
type Handlers struct {
	Health  *HealthHandler  // Health serves service health endpoints (liveness/readiness).
	OpenAPI *OpenAPIHandler // OpenAPI serves API documentation (OpenAPI spec / swagger endpoints).
	Users   *UserHandler    // Users serves the user CRUD endpoints.
}

// NewHandlers constructs the handler container from the application
// container. Handlers reach the ORM runtime and model registry through
// the server, so no further wiring is needed here.
func NewHandlers(s *server.Server) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(s),
		OpenAPI: NewOpenAPIHandler(s),
		Users:   NewUserHandler(s),
	}
}
