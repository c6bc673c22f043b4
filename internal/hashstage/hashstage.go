// Package hashstage is the Hash Stage (spec.md §4.3): N parallel hashers
// computing a content hash for every pending File Instance, interning
// identical hashes to one Hash row through the store's GetOrCreateHash.
// Grounded on the teacher's internal/engine/hash.go streaming-hash shape
// and internal/engine/worker.go's fixed-size pool, with BLAKE3 swapped for
// the spec's project-selected algorithm.
package hashstage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"dupvault/internal/control"
	"dupvault/internal/filehash"
	"dupvault/internal/model"
	"dupvault/internal/store"
)

// Stage runs the hashing pass over every File Instance pending a hash.
type Stage struct {
	store        *store.Store
	algo         model.HashAlgorithm
	movieChunkMB int64
	gate         *control.PauseGate
	workers      int
	rootPaths    map[int64]string

	FilesHashed atomic.Int64
	Errors      atomic.Int64
}

// New builds a Stage. workers should come from concurrency.ForProfile. It
// snapshots the current scan root paths so hashOne can resolve each File
// Instance's relative path to an absolute one without a query per file.
func New(s *store.Store, algo model.HashAlgorithm, movieChunkMB int64, gate *control.PauseGate, workers int) (*Stage, error) {
	if workers < 1 {
		workers = 1
	}
	roots, err := s.ListScanRoots()
	if err != nil {
		return nil, fmt.Errorf("load scan roots: %w", err)
	}
	rootPaths := make(map[int64]string, len(roots))
	for _, r := range roots {
		rootPaths[r.ID] = r.Path
	}
	return &Stage{store: s, algo: algo, movieChunkMB: movieChunkMB, gate: gate, workers: workers, rootPaths: rootPaths}, nil
}

// Run feeds every pending File Instance (largest first) into workers and
// blocks until the pass completes, is cancelled, or a fatal store error
// occurs. Per-file errors do not abort the pass.
func (st *Stage) Run(ctx context.Context) error {
	pending, err := st.store.FilesPendingHash(0)
	if err != nil {
		return fmt.Errorf("list pending hashes: %w", err)
	}

	feed := make(chan model.FileInstance, 1000)

	var wg sync.WaitGroup
	for i := 0; i < st.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fi := range feed {
				st.hashOne(ctx, fi)
			}
		}()
	}

feedLoop:
	for _, fi := range pending {
		st.gate.Wait(ctx.Done())
		select {
		case feed <- fi:
		case <-ctx.Done():
			break feedLoop
		}
	}
	close(feed)
	wg.Wait()
	return ctx.Err()
}

// hashOne implements the per-file protocol of spec.md §4.3: pause/cancel
// check, shared-read open, streamed hash, intern, and status update.
func (st *Stage) hashOne(ctx context.Context, fi model.FileInstance) {
	if ctx.Err() != nil {
		return
	}
	st.gate.Wait(ctx.Done())

	path := filepath.Join(st.rootPaths[fi.ScanRootID], fi.RelativePath)
	f, err := os.Open(path)
	if err != nil {
		st.recordError(ctx, fi, err)
		return
	}
	defer f.Close()

	digest, partialInfo, err := st.computeDigest(f, fi)
	if err != nil {
		st.recordError(ctx, fi, err)
		return
	}

	hashID, err := st.store.GetOrCreateHash(ctx, st.algo, digest, fi.SizeBytes, partialInfo)
	if err != nil {
		st.recordError(ctx, fi, err)
		return
	}

	if err := st.store.SetHash(ctx, fi.ID, hashID); err != nil {
		st.recordError(ctx, fi, err)
		return
	}
	st.FilesHashed.Add(1)
}

func (st *Stage) computeDigest(f *os.File, fi model.FileInstance) ([]byte, string, error) {
	return filehash.Compute(f, fi.SizeBytes, fi.FileName, fi.Category, st.algo, st.movieChunkMB)
}

func (st *Stage) recordError(ctx context.Context, fi model.FileInstance, err error) {
	st.Errors.Add(1)
	kind := classifyError(err)
	_ = st.store.SetError(ctx, fi.ID, kind, err.Error())
}

func classifyError(err error) model.ErrorKind {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return model.ErrorVanished
	case errors.Is(err, os.ErrPermission):
		return model.ErrorPermission
	default:
		return model.ErrorTransient
	}
}

