package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/provider"
)

// fakeProvider is a scriptable in-memory provider for the "test" prefix.
// Calls are recorded in order; failures are injected per resource name.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string // "apply:<name>" / "delete:<name>"
	applied map[string][]byte
	priors  map[string][]byte
	deleted map[string][]byte

	failApply  map[string]error
	failDelete map[string]error
	// blockApply stalls the next Apply for the name until its context
	// expires; cleared after one use so the retry succeeds.
	blockApply map[string]bool
	schemas    map[string]*provider.Schema
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		applied:    make(map[string][]byte),
		priors:     make(map[string][]byte),
		deleted:    make(map[string][]byte),
		failApply:  make(map[string]error),
		failDelete: make(map[string]error),
		blockApply: make(map[string]bool),
		schemas:    make(map[string]*provider.Schema),
	}
}

func (p *fakeProvider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *fakeProvider) Schema(resourceType string) (*provider.Schema, error) {
	if s, ok := p.schemas[resourceType]; ok {
		return s, nil
	}
	return &provider.Schema{}, nil
}

func (p *fakeProvider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, "apply:"+req.Name)
	p.applied[req.Name] = req.DesiredJSON
	p.priors[req.Name] = req.PriorJSON
	err := p.failApply[req.Name]
	block := p.blockApply[req.Name]
	if block {
		delete(p.blockApply, req.Name)
	}
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	var outputs map[string]any
	if err := json.Unmarshal(req.DesiredJSON, &outputs); err != nil {
		return nil, err
	}
	if outputs == nil {
		outputs = map[string]any{}
	}
	outputs["id"] = fmt.Sprintf("%s-%s-id", req.Type, req.Name)
	encoded, err := json.Marshal(outputs)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{OutputsJSON: encoded}, nil
}

func (p *fakeProvider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	p.calls = append(p.calls, "delete:"+req.Name)
	p.deleted[req.Name] = req.PriorJSON
	err := p.failDelete[req.Name]
	p.mu.Unlock()
	return err
}

func (p *fakeProvider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	return &provider.ReadResponse{Exists: true, OutputsJSON: req.PriorJSON}, nil
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

func newTestEngine(p *fakeProvider) *Engine {
	registry := provider.NewRegistry()
	registry.Put("test", p)
	e := New(registry)
	e.Retry = &RetryPolicy{MaxRetries: 0}
	return e
}

// loadConfig parses one in-memory declaration file.
func loadConfig(t *testing.T, src string) *ir.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	cfg, err := config.NewLoader().LoadFiles([]string{path})
	require.NoError(t, err)
	return cfg
}

// seedScope loads every state record into a fresh scope, the way a run
// primes evaluation before planning.
func seedScope(t *testing.T, st *ir.State, variables map[string]any) *lang.Scope {
	t.Helper()
	values := make(map[string]cty.Value, len(variables))
	for name, v := range variables {
		cv, err := lang.GoToCty(v)
		require.NoError(t, err)
		values[name] = cv
	}
	scope := lang.NewScope(values)
	for _, rec := range st.Resources {
		require.NoError(t, scope.SetRecord(rec))
	}
	return scope
}

func noPersist(st *ir.State) error { return nil }
