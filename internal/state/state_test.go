package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floehq/floe/internal/ir"
)

func TestManager_ReadMissing(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)

	s, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)
	assert.Empty(t, s.Resources)
}

func TestManager_ReadWrite(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	lineage := s.Lineage

	s.Resources = []*ir.Record{
		{
			Type:     "aws_cognito_user_pool",
			Name:     "main",
			Provider: "aws",
			Inputs:   map[string]any{"pool_name": "customers"},
			Outputs:  map[string]any{"id": "eu-central-1_abc123"},
		},
	}
	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, lineage, got.Lineage)
	assert.Equal(t, 1, got.Serial)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, "aws_cognito_user_pool.main", got.Resources[0].Addr())
	assert.Equal(t, "customers", got.Resources[0].Inputs["pool_name"])
}

func TestManager_SerialIncrementsPerWrite(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s, err := mgr.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Write(ctx, s))
	require.NoError(t, mgr.Write(ctx, s))
	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Serial)
}

func TestManager_KeyedInstancesRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	s.Resources = []*ir.Record{
		{Type: "aws_cognito_user_pool_client", Name: "clients", Key: "web", Provider: "aws"},
		{Type: "null_resource", Name: "waiters", Key: float64(0), Provider: "null"},
	}
	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	require.Len(t, got.Resources, 2)
	assert.Equal(t, `aws_cognito_user_pool_client.clients["web"]`, got.Resources[0].Addr())
	assert.Equal(t, "null_resource.waiters[0]", got.Resources[1].Addr())
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "unit-test-state-encryption-key!!")

	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	s.Outputs = map[string]any{"pool_id": "eu-central-1_abc123"}
	require.NoError(t, mgr.Write(ctx, s))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "eu-central-1_abc123")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1_abc123", got.Outputs["pool_id"])
}

func TestManager_LockUnlock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)

	require.NoError(t, mgr.Lock())

	other := NewManager(statePath)
	err := other.Lock()
	require.Error(t, err)
	var lockErr *LockError
	assert.ErrorAs(t, err, &lockErr)

	require.NoError(t, mgr.Unlock())
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
}

func TestManager_LockExclusiveUnderContention(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")

	// Racing acquirers must not all observe "no lock" and then each
	// write the file; exactly one may win.
	const racers = 8
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if NewManager(statePath).Lock() == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestManager_LockBreaksStale(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	require.NoError(t, mgr.Lock())

	old := time.Now().Add(-staleLockAge - time.Minute)
	require.NoError(t, os.Chtimes(statePath+".lock", old, old))

	// An abandoned lock is cleared and acquisition proceeds.
	other := NewManager(statePath)
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("local", map[string]string{"path": filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = NewBackend("local", nil)
	assert.Error(t, err)

	_, err = NewBackend("gcs", nil)
	assert.Error(t, err)

	_, err = NewBackend("s3", map[string]string{})
	assert.Error(t, err)
}
