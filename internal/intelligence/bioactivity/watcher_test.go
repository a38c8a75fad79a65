package bioactivity

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

func TestWatcher_ReloadsOnceForBurst(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeArtifacts(t, dir, true, true)
	var opens, closes atomic.Int32
	store := newTestStore(t, dir, &opens, &closes)
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(store, 100*time.Millisecond, logging.NewNopLogger())
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	w.OnReload(func(_ *Snapshot, err error) { reloaded <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	schema := filepath.Join(dir, config.DefaultSchemaFile)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(schema, []byte("A,B,C,D\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	assert.Equal(t, 4, store.Current().Schema.Len())

	select {
	case <-reloaded:
		t.Fatal("burst produced more than one reload")
	case <-time.After(300 * time.Millisecond):
	}

	w.Stop()
	reloads, fails := w.Stats()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 0, fails)
	require.NoError(t, store.Close())
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	var opens, closes atomic.Int32
	store := newTestStore(t, t.TempDir(), &opens, &closes)
	w, err := NewWatcher(store, 0, logging.NewNopLogger())
	require.NoError(t, err)
	w.Stop()
}

//Personal.AI order the ending
