// Package storage defines the backend surface shared by the postgres and
// mongo adapters.
package storage

import (
	"context"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
)

// Backend groups data access by domain.
type Backend interface {
	Users() users.Repository
	Events() events.Repository

	// Ping reports whether the database is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
