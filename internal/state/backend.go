package state

import (
	"context"
	"fmt"

	"github.com/floehq/floe/internal/ir"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, st *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

// NewBackend creates a state backend. typ is "local" or "s3"; config keys
// are backend specific.
func NewBackend(typ string, config map[string]string) (Backend, error) {
	switch typ {
	case "local", "":
		path := config["path"]
		if path == "" {
			return nil, fmt.Errorf("local backend requires 'path' configuration")
		}
		return NewManager(path), nil
	case "s3":
		return newS3Backend(config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", typ)
	}
}
