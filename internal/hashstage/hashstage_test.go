package hashstage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupvault/internal/control"
	"dupvault/internal/model"
	"dupvault/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunHashesPendingFilesAndInternsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.jpg"), []byte("same-content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.jpg"), []byte("same-content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "c.jpg"), []byte("different"), 0o644))

	rootID, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcDir, IsEnabled: true})
	require.NoError(t, err)

	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootID, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: 12,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
		{ScanRootID: rootID, RelativePath: "b.jpg", FileName: "b.jpg", SizeBytes: 12,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
		{ScanRootID: rootID, RelativePath: "c.jpg", FileName: "c.jpg", SizeBytes: 9,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)

	stage, err := New(s, model.HashSHA256, 0, control.NewPauseGate(), 2)
	require.NoError(t, err)
	require.NoError(t, stage.Run(ctx))

	assert.EqualValues(t, 3, stage.FilesHashed.Load())
	assert.Zero(t, stage.Errors.Load())

	hashed, err := s.HashedFileInstances()
	require.NoError(t, err)
	require.Len(t, hashed, 3)

	byName := map[string]model.FileInstance{}
	for _, fi := range hashed {
		byName[fi.FileName] = fi
	}
	require.NotNil(t, byName["a.jpg"].HashID)
	require.NotNil(t, byName["b.jpg"].HashID)
	require.NotNil(t, byName["c.jpg"].HashID)
	assert.Equal(t, *byName["a.jpg"].HashID, *byName["b.jpg"].HashID)
	assert.NotEqual(t, *byName["a.jpg"].HashID, *byName["c.jpg"].HashID)
}

func TestRunRecordsErrorForMissingFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	rootID, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcDir, IsEnabled: true})
	require.NoError(t, err)

	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootID, RelativePath: "missing.jpg", FileName: "missing.jpg", SizeBytes: 10,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)

	stage, err := New(s, model.HashSHA256, 0, control.NewPauseGate(), 1)
	require.NoError(t, err)
	require.NoError(t, stage.Run(ctx))

	assert.EqualValues(t, 1, stage.Errors.Load())
	assert.Zero(t, stage.FilesHashed.Load())

	pending, err := s.FilesPendingHash(0)
	require.NoError(t, err)
	assert.Empty(t, pending) // moved to Error status, no longer "pending"
}

func TestSizeNameModeIsNonCryptographic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.jpg"), []byte("hello"), 0o644))

	rootID, err := s.AddScanRoot(ctx, model.ScanRoot{Path: srcDir, IsEnabled: true})
	require.NoError(t, err)
	_, err = s.BatchInsertFileInstances(ctx, []model.FileInstance{
		{ScanRootID: rootID, RelativePath: "a.jpg", FileName: "a.jpg", SizeBytes: 5,
			ModifiedUtc: time.Now(), Status: model.FileDiscovered, Category: model.CategoryImage},
	})
	require.NoError(t, err)

	stage, err := New(s, model.HashSizeName, 0, control.NewPauseGate(), 1)
	require.NoError(t, err)
	require.NoError(t, stage.Run(ctx))

	hashed, err := s.HashedFileInstances()
	require.NoError(t, err)
	require.Len(t, hashed, 1)
	h, err := s.HashByID(*hashed[0].HashID)
	require.NoError(t, err)
	assert.Equal(t, model.HashSizeName, h.Algorithm)
}
