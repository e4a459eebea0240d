// Package attendance is the gate attendance core: event ingestion with
// write-time sequencing checks, day-level validation, daily status
// aggregation, and the operator reconciliation workflow.
package attendance

import (
	"log/slog"

	"gatelog/internal/attendance/handler"
	"gatelog/internal/attendance/service"
	"gatelog/internal/platform/middleware"
)

// Service exposes attendance orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the attendance service.
type Handler = handler.Handler

// NewService constructs the attendance service with required dependencies.
func NewService(events service.EventStore, opts ...service.Option) *Service {
	return service.New(events, opts...)
}

// NewHandler constructs the HTTP handler for attendance routes.
func NewHandler(s *Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return handler.New(s, logger, validator)
}
