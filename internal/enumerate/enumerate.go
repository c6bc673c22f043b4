// Package enumerate is the Enumerator (spec.md §4.2): an explicit-stack,
// depth-first directory walk that streams filtered candidates into a
// bounded channel for the writer actor, grounded on the teacher's
// internal/engine/scanner.go traversal shape but walked by one goroutine
// that visits the roots one after another, each with its own explicit
// stack, rather than by concurrent directory workers.
package enumerate

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"dupvault/internal/control"
	"dupvault/internal/filter"
	"dupvault/internal/model"
)

// Candidate is one file accepted by the filter, ready for the writer actor
// to batch-insert as a File Instance.
type Candidate struct {
	ScanRootID   int64
	RelativePath string
	FileName     string
	Extension    string
	SizeBytes    int64
	ModifiedUtc  time.Time
	Category     model.Category
}

// Error records a walk failure that did not halt enumeration.
type Error struct {
	Path string
	Err  error
}

// Root is one enabled scan root to walk.
type Root struct {
	ID   int64
	Path string
}

// Enumerator streams candidates from a set of enabled roots.
type Enumerator struct {
	filter *filter.Chain
	gate   *control.PauseGate

	candidates chan Candidate
	errs       chan Error
}

// New builds an Enumerator with the bounded channel capacity spec.md §5
// assigns to the Enumerator→Writer edge (50 000).
func New(f *filter.Chain, gate *control.PauseGate) *Enumerator {
	return &Enumerator{
		filter:     f,
		gate:       gate,
		candidates: make(chan Candidate, 50000),
		errs:       make(chan Error, 256),
	}
}

// Scan walks every root and returns the candidate and error streams. Both
// channels are closed once every root is exhausted or ctx is cancelled.
// Before each yielded candidate the pause gate is waited on and ctx.Done()
// is checked fail-fast, matching spec.md §4.2's public contract.
func (e *Enumerator) Scan(ctx context.Context, roots []Root) (<-chan Candidate, <-chan Error) {
	go func() {
		defer close(e.candidates)
		defer close(e.errs)
		for _, root := range roots {
			if ctx.Err() != nil {
				return
			}
			e.walkRoot(ctx, root)
		}
	}()
	return e.candidates, e.errs
}

func (e *Enumerator) walkRoot(ctx context.Context, root Root) {
	stack := []string{root.Path}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Lstat(dir)
		if err != nil {
			e.sendErr(dir, err)
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// Reparse point / symlink: skip, do not descend.
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			e.sendErr(dir, err)
			continue
		}

		var subdirs []string
		for _, entry := range entries {
			entryPath := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				st, err := os.Lstat(entryPath)
				if err != nil || st.Mode()&os.ModeSymlink != 0 {
					if err != nil {
						e.sendErr(entryPath, err)
					}
					continue
				}
				subdirs = append(subdirs, entryPath)
				continue
			}

			if entry.Type()&os.ModeSymlink != 0 {
				continue
			}

			fi, err := entry.Info()
			if err != nil {
				e.sendErr(entryPath, err)
				continue
			}

			cat, ok := e.filter.Match(entry.Name(), fi.Size())
			if !ok {
				continue
			}

			rel, err := filepath.Rel(root.Path, entryPath)
			if err != nil {
				e.sendErr(entryPath, err)
				continue
			}

			if !e.emit(ctx, Candidate{
				ScanRootID:   root.ID,
				RelativePath: rel,
				FileName:     entry.Name(),
				Extension:    filter.Extension(entry.Name()),
				SizeBytes:    fi.Size(),
				ModifiedUtc:  fi.ModTime().UTC(),
				Category:     cat,
			}) {
				return
			}
		}

		// Push subdirectories last so the stack's LIFO order visits the
		// most recently discovered subtree first (depth-first).
		stack = append(stack, subdirs...)
	}
}

// emit waits on the pause gate, checks cancellation, then writes to the
// bounded channel. It returns false if the scan should abort.
func (e *Enumerator) emit(ctx context.Context, c Candidate) bool {
	done := ctx.Done()
	for e.gate.Paused() {
		select {
		case <-e.gate.C():
		case <-done:
			return false
		}
	}
	select {
	case e.candidates <- c:
		return true
	case <-done:
		return false
	}
}

func (e *Enumerator) sendErr(path string, err error) {
	select {
	case e.errs <- Error{Path: path, Err: err}:
	default:
	}
}
