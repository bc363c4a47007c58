package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStore_EmptyPathUsesDefaults(t *testing.T) {
	s, err := NewPolicyStore("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBroadcastFanout, s.Current().BroadcastFanout)
	assert.NoError(t, s.Reload())
}

func TestPolicyStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broadcastFanout: 2\n"), 0o644))

	s, err := NewPolicyStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Current().BroadcastFanout)

	require.NoError(t, os.WriteFile(path, []byte("broadcastFanout: -4\n"), 0o644))
	assert.Error(t, s.Reload())
	assert.Equal(t, 2, s.Current().BroadcastFanout)
}

func TestPolicyStore_MissingFile(t *testing.T) {
	_, err := NewPolicyStore(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPolicyStore_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broadcastFanout: 2\n"), 0o644))

	s, err := NewPolicyStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("broadcastFanout: 7\n"), 0o644))

	assert.Eventually(t, func() bool {
		return s.Current().BroadcastFanout == 7
	}, 5*time.Second, 50*time.Millisecond)
}
