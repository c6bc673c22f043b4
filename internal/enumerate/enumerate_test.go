package enumerate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupvault/internal/control"
	"dupvault/internal/filter"
)

func drain(ch <-chan Candidate) []Candidate {
	var out []Candidate
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func drainErrs(ch <-chan Error) []Error {
	var out []Error
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestScanCollectsMatchingFilesDepthFirst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("doc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignore.xyz"), []byte("?"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.png"), []byte("y"), 0o644))

	f := filter.NewChain()
	e := New(f, control.NewPauseGate())
	cands, errs := e.Scan(context.Background(), []Root{{ID: 1, Path: root}})

	got := drain(cands)
	require.Empty(t, drainErrs(errs))
	require.Len(t, got, 3)

	names := map[string]bool{}
	for _, c := range got {
		names[c.FileName] = true
		assert.Equal(t, int64(1), c.ScanRootID)
	}
	assert.True(t, names["a.jpg"])
	assert.True(t, names["notes.txt"])
	assert.True(t, names["b.png"])
	assert.False(t, names["ignore.xyz"])
}

func TestScanSkipsSymlinkedDirectories(t *testing.T) {
	root := t.TempDir()
	real := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(real, "hidden.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(real, filepath.Join(root, "link")))

	f := filter.NewChain()
	e := New(f, control.NewPauseGate())
	cands, errs := e.Scan(context.Background(), []Root{{ID: 1, Path: root}})

	got := drain(cands)
	drainErrs(errs)
	assert.Empty(t, got)
}

func TestScanAppliesSizeWindow(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "small.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.jpg"), make([]byte, 1000), 0o644))

	f := filter.NewChain()
	f.SetMinSize(500)
	e := New(f, control.NewPauseGate())
	cands, errs := e.Scan(context.Background(), []Root{{ID: 1, Path: root}})

	got := drain(cands)
	drainErrs(errs)
	require.Len(t, got, 1)
	assert.Equal(t, "big.jpg", got[0].FileName)
}

func TestScanRespectsCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i%26))+".jpg"), []byte("x"), 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := filter.NewChain()
	e := New(f, control.NewPauseGate())
	cands, errs := e.Scan(ctx, []Root{{ID: 1, Path: root}})

	got := drain(cands)
	drainErrs(errs)
	assert.Empty(t, got)
}

func TestScanBlocksOnPauseGateThenResumes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))

	gate := control.NewPauseGate()
	gate.Pause()

	f := filter.NewChain()
	e := New(f, gate)
	cands, errs := e.Scan(context.Background(), []Root{{ID: 1, Path: root}})

	done := make(chan []Candidate)
	go func() { done <- drain(cands) }()

	select {
	case <-done:
		t.Fatal("scan completed while paused")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Resume()

	select {
	case got := <-done:
		require.Len(t, got, 1)
	case <-time.After(time.Second):
		t.Fatal("scan did not resume after gate opened")
	}
	drainErrs(errs)
}

func TestScanReportsUnreadableDirectoryAsErrorWithoutHalting(t *testing.T) {
	root := t.TempDir()
	unreadable := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(unreadable, 0o000))
	t.Cleanup(func() { os.Chmod(unreadable, 0o755) })
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))

	f := filter.NewChain()
	e := New(f, control.NewPauseGate())
	cands, errs := e.Scan(context.Background(), []Root{{ID: 1, Path: root}})

	got := drain(cands)
	gotErrs := drainErrs(errs)

	require.Len(t, got, 1)
	assert.NotEmpty(t, gotErrs)
}
