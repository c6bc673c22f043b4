// Package copyexec is the Copy Executor (spec.md §4.5): materializes the
// approved plan onto disk, at-most-once per Unique File, atomically per
// file, with optional post-copy verification. Grounded on the teacher's
// internal/engine/worker.go copyRegularFile (temp-file-beside-destination,
// atomic rename, unix timestamp preservation) generalized to the store's
// Copy Job claim protocol instead of a channel of FileTasks.
package copyexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"dupvault/internal/control"
	"dupvault/internal/filehash"
	"dupvault/internal/model"
	"dupvault/internal/store"
)

const (
	chunkSize   = 1 << 20 // 1 MiB, per spec.md §4.5 step 5
	maxAttempts = 3
)

// Executor runs Copy Jobs to completion against the store.
type Executor struct {
	store           *store.Store
	verifyAfterCopy bool
	gate            *control.PauseGate
	workers         int

	destMu      sync.Mutex
	claimedDest map[string]string // final path -> claiming hash hex, in-flight copies only

	JobsCopied atomic.Int64
	JobsFailed atomic.Int64
	BytesCopied atomic.Int64
}

// New builds an Executor. workers should come from concurrency.ForProfile's
// CopyWorkers. Each job's own Hash row (algorithm, size, PartialHashInfo)
// determines how its digest is recomputed, so the Executor carries no
// project-wide algorithm of its own.
func New(s *store.Store, verifyAfterCopy bool, gate *control.PauseGate, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		store: s, verifyAfterCopy: verifyAfterCopy, gate: gate, workers: workers,
		claimedDest: make(map[string]string),
	}
}

// Run claims and processes Copy Jobs in batches until none remain pending,
// is cancelled, or a fatal store error occurs.
func (e *Executor) Run(ctx context.Context, destRoot string) error {
	const claimBatch = 100

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.gate.Wait(ctx.Done())

		jobs, err := e.store.ClaimPendingJobs(ctx, claimBatch)
		if err != nil {
			return fmt.Errorf("claim pending jobs: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		feed := make(chan model.JobDetail, len(jobs))
		for _, j := range jobs {
			feed <- j
		}
		close(feed)

		var wg sync.WaitGroup
		for i := 0; i < e.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for jd := range feed {
					e.runJob(ctx, jd, destRoot)
				}
			}()
		}
		wg.Wait()
	}
}

func (e *Executor) runJob(ctx context.Context, jd model.JobDetail, destRoot string) {
	var lastErr error
	attempt := jd.Job.AttemptCount // ClaimPendingJobs already incremented once

	for {
		err := e.attemptCopy(ctx, jd, destRoot)
		if err == nil {
			e.JobsCopied.Add(1)
			return
		}
		lastErr = err

		if !retryable(err) || attempt >= maxAttempts {
			e.JobsFailed.Add(1)
			if errors.Is(err, errSourceMissing) {
				_ = e.store.MarkJobSkipped(ctx, jd.Job.ID, "source missing")
				return
			}
			_ = e.store.MarkJobError(ctx, jd.Job.ID, lastErr.Error())
			return
		}

		backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			_ = e.store.ResetJobToPending(ctx, jd.Job.ID)
			return
		}
		attempt++
	}
}

var (
	errSourceMissing = errors.New("copyexec: source missing")
	errHashMismatch  = errors.New("copyexec: verification hash mismatch")
)

func retryable(err error) bool {
	if errors.Is(err, errSourceMissing) || errors.Is(err, os.ErrPermission) {
		return false
	}
	return true
}

// attemptCopy implements one attempt of the per-job protocol (spec.md §4.5).
func (e *Executor) attemptCopy(ctx context.Context, jd model.JobDetail, destRoot string) error {
	if _, err := os.Stat(jd.SourcePath); errors.Is(err, os.ErrNotExist) {
		return errSourceMissing
	}

	finalPath, releaseDest := e.resolveDestination(destRoot, jd)
	defer releaseDest()
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(finalPath), err)
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", finalPath, uuid.New().String())
	defer os.Remove(tmpPath) // no-op once rename succeeds

	bytesCopied, err := e.copyToTemp(ctx, jd.SourcePath, tmpPath)
	if err != nil {
		return err
	}
	e.BytesCopied.Add(bytesCopied)

	srcInfo, err := os.Stat(jd.SourcePath)
	if err != nil {
		return fmt.Errorf("stat source %s: %w", jd.SourcePath, err)
	}
	if err := preserveTimestamps(tmpPath, srcInfo); err != nil {
		return fmt.Errorf("preserve timestamps: %w", err)
	}

	if e.verifyAfterCopy {
		digest, err := filehash.Recompute(tmpPath, jd.FileName, jd.ExpectedHash)
		if err != nil {
			return fmt.Errorf("verify re-hash: %w", err)
		}
		if string(digest) != string(jd.ExpectedHash.HashBytes) {
			return errHashMismatch
		}
	}

	if existing, err := os.Stat(finalPath); err == nil && !existing.IsDir() {
		matches, err := destinationMatchesExpectedHash(finalPath, jd.FileName, jd.ExpectedHash)
		if err != nil {
			return err
		}
		if matches {
			if err := os.Remove(finalPath); err != nil {
				return fmt.Errorf("remove stale destination %s: %w", finalPath, err)
			}
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, finalPath, err)
	}

	if e.verifyAfterCopy {
		if err := e.store.MarkJobVerified(ctx, jd.Job.ID, finalPath); err != nil {
			return err
		}
	} else if err := e.store.MarkJobCopied(ctx, jd.Job.ID, finalPath); err != nil {
		return err
	}
	return e.store.MarkUniqueFileCopied(ctx, jd.UniqueFile.ID)
}

// resolveDestination applies the conflict-resolution suffix when the
// planned destination is known to collide with a different-hash file —
// either already on disk, or claimed in-flight by another worker racing to
// the same name (spec.md §4.5 "Conflict resolution"). Two workers copying
// distinct-hash Unique Files that plan to the same final path must never
// both pick the unsuffixed name: the returned release func frees the claim
// once this attempt is done with it, success or failure, so a retry or a
// colliding job can claim it next.
func (e *Executor) resolveDestination(destRoot string, jd model.JobDetail) (string, func()) {
	planned := filepath.Join(destRoot, jd.FolderPath, jd.FileName)

	ext := filepath.Ext(jd.FileName)
	stem := strings.TrimSuffix(jd.FileName, ext)
	shortHash := jd.ExpectedHash.HashHex
	if len(shortHash) > 8 {
		shortHash = shortHash[:8]
	}

	candidate := planned
	for counter := 2; ; counter++ {
		if e.claimDestination(candidate, jd.FileName, jd.ExpectedHash) {
			return candidate, func() { e.releaseDestination(candidate) }
		}
		if candidate == planned {
			candidate = filepath.Join(destRoot, jd.FolderPath, fmt.Sprintf("%s_%s%s", stem, shortHash, ext))
		} else {
			candidate = filepath.Join(destRoot, jd.FolderPath, fmt.Sprintf("%s_%s_%d%s", stem, shortHash, counter, ext))
		}
	}
}

// claimDestination reserves path for a copy expected to produce the given
// hash. It returns false if path is occupied by a different hash — either a
// file already on disk or another worker's in-flight claim — in which case
// the caller must try the next suffixed candidate. A path already claimed,
// or occupied on disk, by the same hash is reused rather than suffixed: the
// stat and the claim happen under one lock so two workers can never both
// observe an empty path and both claim it.
func (e *Executor) claimDestination(path, fileName string, expected model.Hash) bool {
	e.destMu.Lock()
	defer e.destMu.Unlock()

	if holder, ok := e.claimedDest[path]; ok {
		return holder == expected.HashHex
	}
	if fileExistsWithDifferentHash(path, fileName, expected) {
		return false
	}
	e.claimedDest[path] = expected.HashHex
	return true
}

func (e *Executor) releaseDestination(path string) {
	e.destMu.Lock()
	delete(e.claimedDest, path)
	e.destMu.Unlock()
}

func fileExistsWithDifferentHash(path, fileName string, expected model.Hash) bool {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false
	}
	matches, err := destinationMatchesExpectedHash(path, fileName, expected)
	return err == nil && !matches
}

func destinationMatchesExpectedHash(path, fileName string, expected model.Hash) (bool, error) {
	digest, err := filehash.Recompute(path, fileName, expected)
	if err != nil {
		return false, err
	}
	return string(digest) == string(expected.HashBytes), nil
}

// copyToTemp streams src into a freshly created tmpPath in chunkSize
// increments, checking the pause gate and cancellation between every
// chunk (spec.md §5's "no operation larger than one buffer run unchecked").
func (e *Executor) copyToTemp(ctx context.Context, srcPath, tmpPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, errSourceMissing
		}
		return 0, fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp %s: %w", tmpPath, err)
	}
	defer dst.Close()

	buf := make([]byte, chunkSize)
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		e.gate.Wait(ctx.Done())

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return total, fmt.Errorf("write temp %s: %w", tmpPath, writeErr)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return total, fmt.Errorf("read source %s: %w", srcPath, readErr)
		}
	}
	return total, nil
}

// preserveTimestamps copies the source's modification time onto path, via
// the same AT_EMPTY_PATH/AT_FDCWD fallback the teacher's worker pool uses.
func preserveTimestamps(path string, srcInfo os.FileInfo) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	modTime := srcInfo.ModTime()
	times := []unix.Timespec{
		unix.NsecToTimespec(modTime.UnixNano()),
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	rawFd := int(f.Fd())
	if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0); err2 != nil {
			return fmt.Errorf("utimensat: %w", err)
		}
	}
	return nil
}
