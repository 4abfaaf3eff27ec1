// Package provider defines the contract between the engine and resource
// providers. Providers run in-process; each call takes and returns
// JSON-encoded attribute maps so provider implementations stay decoupled
// from the engine's value representation.
package provider

import "context"

// Interface is implemented by every resource provider.
type Interface interface {
	// Configure prepares the provider with its settings (e.g. region).
	Configure(ctx context.Context, settings map[string]string) error

	// Schema describes a resource type. The engine uses it to decide
	// between update-in-place and replacement.
	Schema(resourceType string) (*Schema, error)

	// Apply creates the resource when req.PriorJSON is nil, otherwise
	// updates it in place. It returns the full new attribute state.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Delete destroys the resource described by the prior state.
	Delete(ctx context.Context, req *DeleteRequest) error

	// Read refreshes the resource's attributes from the target API.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
}

// Schema describes one resource type.
type Schema struct {
	// ImmutableAttrs lists attributes that cannot change in place; a diff
	// on any of them forces replacement.
	ImmutableAttrs []string
}

// Immutable reports whether attr forces replacement when changed.
func (s *Schema) Immutable(attr string) bool {
	for _, a := range s.ImmutableAttrs {
		if a == attr {
			return true
		}
	}
	return false
}

type ApplyRequest struct {
	Type        string
	Name        string
	DesiredJSON []byte
	// PriorJSON carries the prior outputs for an update, nil for a create.
	PriorJSON []byte
}

type ApplyResponse struct {
	// OutputsJSON is the full attribute state after the call, including
	// provider-assigned identifiers.
	OutputsJSON []byte
}

type DeleteRequest struct {
	Type string
	Name string
	// PriorJSON carries the recorded outputs of the resource being
	// destroyed, including its identifiers.
	PriorJSON []byte
}

type ReadRequest struct {
	Type      string
	Name      string
	PriorJSON []byte
}

type ReadResponse struct {
	Exists      bool
	OutputsJSON []byte
}
