// Package handlers implements the SitePulse HTTP API.
//
// Route registration lives in internal/app; handlers report failures by
// attaching an AppError to the gin context and letting the error-handler
// middleware render it.
package handlers

import (
	"context"

	"sitepulse.io/sitepulse/internal/audit"
	"sitepulse.io/sitepulse/internal/broadcast"
	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
)

// ProjectStore is the read surface the API needs from the repository.
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjectNotifications(ctx context.Context, projectID string, limit int) ([]domain.Notification, error)
}

// EventSink appends recognized events to the durable outbox.
type EventSink interface {
	AppendEvent(ctx context.Context, event *domain.DomainEvent) error
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements all API handlers.
type Server struct {
	store   ProjectStore
	events  EventSink
	ledger  *audit.Service
	adapter *cascade.Adapter
	hub     *broadcast.Hub
	pinger  Pinger
}

// ServerDeps holds all dependencies for creating a Server.
// Manual DI, no Wire/Dig.
type ServerDeps struct {
	Store   ProjectStore
	Events  EventSink
	Ledger  *audit.Service
	Adapter *cascade.Adapter
	Hub     *broadcast.Hub
	Pinger  Pinger // optional, skipped in readiness checks when nil
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:   deps.Store,
		events:  deps.Events,
		ledger:  deps.Ledger,
		adapter: deps.Adapter,
		hub:     deps.Hub,
		pinger:  deps.Pinger,
	}
}

// Hub exposes the broadcast hub for websocket route registration.
func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}
