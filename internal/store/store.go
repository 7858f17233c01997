// Package store keeps open cases in process memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/medendorse/internal/consult"
)

// ErrCaseNotFound is returned when no case exists for an ID.
var ErrCaseNotFound = errors.New("case not found")

// Repository defines the interface for holding open cases.
type Repository interface {
	// Create registers a new empty case.
	Create(ctx context.Context) (*consult.Case, error)

	// Get retrieves a case by ID.
	Get(ctx context.Context, id string) (*consult.Case, error)

	// Delete removes a case and ends its subscriptions.
	Delete(ctx context.Context, id string) error

	// List returns all open cases, oldest first.
	List(ctx context.Context) ([]*consult.Case, error)

	// GetExpired returns cases idle for longer than ttl.
	GetExpired(ctx context.Context, ttl time.Duration) ([]*consult.Case, error)

	// Ping reports whether the repository can serve requests.
	Ping(ctx context.Context) error

	// Close releases all cases.
	Close() error
}
