package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcherPipeline(t *testing.T, base string) *Watcher {
	t.Helper()
	logger := testLogger()
	decoder, err := NewDecoder(logger)
	require.NoError(t, err)
	dispatcher := NewDispatcher(decoder, NewRecordValidator(logger), &fakeStore{}, NewClassifier(base, logger), 4, logger)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	inbound := filepath.Join(base, "inbound")
	w := NewWatcher(inbound, time.Second, dispatcher, logger)
	require.NoError(t, os.MkdirAll(inbound, 0o755))
	require.NoError(t, os.MkdirAll(w.WorkDir(), 0o755))
	return w
}

func TestWatcher_ScanClaimsAndProcesses(t *testing.T) {
	base := t.TempDir()
	w := newWatcherPipeline(t, base)

	inbound := filepath.Join(base, "inbound")
	require.NoError(t, os.WriteFile(filepath.Join(inbound, "batch.json"), []byte(validFilePayload), 0o644))
	// hidden files and directories are not candidates
	require.NoError(t, os.WriteFile(filepath.Join(inbound, ".partial"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(inbound, "subdir"), 0o755))

	claimed := w.Scan()
	assert.Equal(t, 1, claimed)

	entries, err := os.ReadDir(inbound)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "batch.json", e.Name(), "claimed file must leave the inbound directory")
	}
}

func TestWatcher_TwoWatchersNeverClaimTheSameFile(t *testing.T) {
	base := t.TempDir()
	w1 := newWatcherPipeline(t, base)
	w2 := newWatcherPipeline(t, base)

	inbound := filepath.Join(base, "inbound")
	const fileCount = 24
	for i := 0; i < fileCount; i++ {
		payload := fmt.Sprintf(`[{"guid":"%08d-1111-4111-8111-111111111111","accountNameOwner":"test_checking","accountType":"debit","description":"rec %d","category":"","amount":1.00,"transactionDate":"2023-01-01","transactionState":"cleared","transactionType":"expense"}]`, i, i)
		require.NoError(t, os.WriteFile(filepath.Join(inbound, fmt.Sprintf("f-%02d.json", i)), []byte(payload), 0o644))
	}

	var wg sync.WaitGroup
	claims := make([]int, 2)
	for i, w := range []*Watcher{w1, w2} {
		wg.Add(1)
		go func(i int, w *Watcher) {
			defer wg.Done()
			for {
				n := w.Scan()
				claims[i] += n
				if n == 0 {
					return
				}
			}
		}(i, w)
	}
	wg.Wait()

	assert.Equal(t, fileCount, claims[0]+claims[1], "every file claimed exactly once")

	entries, err := os.ReadDir(inbound)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatcher_ExactlyOneArchivedCopyPerFile(t *testing.T) {
	base := t.TempDir()
	w := newWatcherPipeline(t, base)

	inbound := filepath.Join(base, "inbound")
	const fileCount = 8
	for i := 0; i < fileCount; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(inbound, fmt.Sprintf("junk-%d.txt", i)), []byte("not json at all"), 0o644))
	}

	// Two scan passes over the same directory must not double-claim.
	first := w.Scan()
	second := w.Scan()
	assert.Equal(t, fileCount, first)
	assert.Zero(t, second)
}

func TestWatcher_ForwardConsumesWatchErrors(t *testing.T) {
	base := t.TempDir()
	w := newWatcherPipeline(t, base)

	// Unbuffered, like fsnotify's own channels: an unread error would block
	// the sender and stall event delivery.
	fsEvents := make(chan fsnotify.Event)
	fsErrors := make(chan error)
	out := make(chan fsnotify.Event, 4)

	done := make(chan struct{})
	go func() {
		w.forward(fsEvents, fsErrors, out)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case fsErrors <- fmt.Errorf("event queue overflowed"):
		case <-time.After(time.Second):
			t.Fatal("watch error not consumed")
		}
	}

	ev := fsnotify.Event{Name: "batch.json", Op: fsnotify.Create}
	select {
	case fsEvents <- ev:
	case <-time.After(time.Second):
		t.Fatal("event not consumed after watch errors")
	}

	select {
	case got := <-out:
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	close(fsEvents)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop on channel close")
	}
}

func TestWatcher_ClaimDoesNotClobberCrashRemnant(t *testing.T) {
	base := t.TempDir()
	w := newWatcherPipeline(t, base)

	// A crashed run left a claimed-but-unarchived file behind.
	remnant := filepath.Join(w.WorkDir(), "batch.json")
	require.NoError(t, os.WriteFile(remnant, []byte("crash remnant"), 0o644))

	inbound := filepath.Join(base, "inbound")
	require.NoError(t, os.WriteFile(filepath.Join(inbound, "batch.json"), []byte("not json at all"), 0o644))

	claimed := w.Scan()
	assert.Equal(t, 1, claimed)

	b, err := os.ReadFile(remnant)
	require.NoError(t, err)
	assert.Equal(t, "crash remnant", string(b))
}
