package copyexec

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupvault/internal/control"
	"dupvault/internal/model"
	"dupvault/internal/plan"
	"dupvault/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPlannedJob creates a scan root, file instance, hash, plan, and one
// pending Copy Job, returning the store and destination root.
func seedPlannedJob(t *testing.T, content []byte, when time.Time) (*store.Store, string) {
	t.Helper()
	ctx := context.Background()
	s := openTestStore(t)

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.jpg"), content, 0o644))

	rootID, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcDir, IsEnabled: true})
	require.NoError(t, err)
	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootID, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: int64(len(content)),
			ModifiedUtc: when, Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)

	pending, err := s.FilesPendingHash(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	hashID, err := s.GetOrCreateHash(ctx, model.HashSHA256, sha256Sum(content), int64(len(content)), "")
	require.NoError(t, err)
	require.NoError(t, s.SetHash(ctx, pending[0].ID, hashID))

	builder := plan.New(s)
	_, err = builder.Build(ctx)
	require.NoError(t, err)

	destRoot := t.TempDir()
	created, err := s.CreateJobsFromPlan(ctx, destRoot)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	return s, destRoot
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func TestRunCopiesPendingJobToDestination(t *testing.T) {
	s, destRoot := seedPlannedJob(t, []byte("hello world"), time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	exec := New(s, false, control.NewPauseGate(), 1)
	require.NoError(t, exec.Run(ctx, destRoot))

	assert.EqualValues(t, 1, exec.JobsCopied.Load())

	entries, err := os.ReadDir(filepath.Join(destRoot, "2024", "2024-05"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.jpg", entries[0].Name())

	counts, err := s.CopyJobCounts()
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.JobCopied])
}

func TestRunVerifiesWhenEnabled(t *testing.T) {
	s, destRoot := seedPlannedJob(t, []byte("verify me"), time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	exec := New(s, true, control.NewPauseGate(), 1)
	require.NoError(t, exec.Run(ctx, destRoot))

	counts, err := s.CopyJobCounts()
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.JobVerified])
}

// TestRunResolvesCollidingDestinationsUnderConcurrency reproduces two
// distinct-hash Unique Files planned to the identical destination path
// (same name, same date-derived folder) and runs the executor with
// multiple workers. Before resolveDestination claimed names in-flight, both
// workers could stat the same not-yet-existing planned path, both resolve
// to it, and the losing os.Rename would silently clobber the winner.
func TestRunResolvesCollidingDestinationsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	when := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

	contentA := []byte("first colliding file")
	contentB := []byte("second colliding file, different bytes")

	srcA := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcA, "a.jpg"), contentA, 0o644))
	rootA, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcA, IsEnabled: true})
	require.NoError(t, err)

	srcB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcB, "a.jpg"), contentB, 0o644))
	rootB, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcB, IsEnabled: true})
	require.NoError(t, err)

	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootA, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: int64(len(contentA)),
			ModifiedUtc: when, Status: model.FileDiscovered, Category: model.CategoryImage},
		{ScanRootID: rootB, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: int64(len(contentB)),
			ModifiedUtc: when, Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)

	pending, err := s.FilesPendingHash(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, fi := range pending {
		content := contentA
		if fi.ScanRootID == rootB {
			content = contentB
		}
		hashID, err := s.GetOrCreateHash(ctx, model.HashSHA256, sha256Sum(content), int64(len(content)), "")
		require.NoError(t, err)
		require.NoError(t, s.SetHash(ctx, fi.ID, hashID))
	}

	builder := plan.New(s)
	n, err := builder.Build(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	destRoot := t.TempDir()
	created, err := s.CreateJobsFromPlan(ctx, destRoot)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	exec := New(s, false, control.NewPauseGate(), 4)
	require.NoError(t, exec.Run(ctx, destRoot))

	assert.EqualValues(t, 2, exec.JobsCopied.Load())

	entries, err := os.ReadDir(filepath.Join(destRoot, "2024", "2024-05"))
	require.NoError(t, err)
	require.Len(t, entries, 2, "both colliding files must survive under distinct names")

	seen := make(map[string][]byte)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(destRoot, "2024", "2024-05", e.Name()))
		require.NoError(t, err)
		seen[e.Name()] = b
	}
	var gotA, gotB bool
	for _, b := range seen {
		if string(b) == string(contentA) {
			gotA = true
		}
		if string(b) == string(contentB) {
			gotB = true
		}
	}
	assert.True(t, gotA, "first colliding file's bytes must be present on disk")
	assert.True(t, gotB, "second colliding file's bytes must be present on disk")
}

func TestRunMarksSkippedWhenSourceVanishes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.jpg")
	require.NoError(t, os.WriteFile(srcFile, []byte("gone soon"), 0o644))

	rootID, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcDir, IsEnabled: true})
	require.NoError(t, err)
	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootID, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: 9,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)
	pending, err := s.FilesPendingHash(0)
	require.NoError(t, err)
	hashID, err := s.GetOrCreateHash(ctx, model.HashSHA256, sha256Sum([]byte("gone soon")), 9, "")
	require.NoError(t, err)
	require.NoError(t, s.SetHash(ctx, pending[0].ID, hashID))

	builder := plan.New(s)
	_, err = builder.Build(ctx)
	require.NoError(t, err)
	destRoot := t.TempDir()
	_, err = s.CreateJobsFromPlan(ctx, destRoot)
	require.NoError(t, err)

	require.NoError(t, os.Remove(srcFile))

	exec := New(s, false, control.NewPauseGate(), 1)
	require.NoError(t, exec.Run(ctx, destRoot))

	counts, err := s.CopyJobCounts()
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.JobSkipped])
}
