// Package null implements a provider with no backing API. Its single
// resource type, null_resource, is useful for sequencing and for exercising
// the engine in tests.
package null

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/floehq/floe/internal/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func init() {
	provider.RegisterFactory("null", func() provider.Interface {
		return New()
	})
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.Schema, error) {
	if resourceType != "null_resource" {
		return nil, fmt.Errorf("unsupported resource type: %s", resourceType)
	}
	// Triggers only change by replacing the resource.
	return &provider.Schema{ImmutableAttrs: []string{"triggers"}}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if req.Type != "null_resource" {
		return nil, fmt.Errorf("unsupported resource type: %s", req.Type)
	}

	var desired map[string]any
	if len(req.DesiredJSON) > 0 {
		if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
			return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
		}
	}

	outputs := map[string]any{
		"id": fmt.Sprintf("null-%s", req.Name),
	}
	if triggers, ok := desired["triggers"]; ok {
		outputs["triggers"] = triggers
	}

	encoded, err := json.Marshal(outputs)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	return nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	// Nothing exists outside the state, so the recorded attributes are
	// authoritative.
	return &provider.ReadResponse{
		Exists:      true,
		OutputsJSON: req.PriorJSON,
	}, nil
}
