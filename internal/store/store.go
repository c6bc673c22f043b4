// Package store is the Persistent Store (spec.md §4.1): durable,
// transactional storage for every pipeline entity, tuned for one writer and
// many concurrent readers. It is backed by modernc.org/sqlite — the same
// cgo-free SQLite driver the teacher's checkpoint database uses — in
// WAL-journal mode with a single serialized writer goroutine.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrStorageOpen is returned when the store's path cannot be opened.
var ErrStorageOpen = fmt.Errorf("storage open error")

// Store is the embedded relational store. All mutating statements funnel
// through one writer goroutine (writeLoop); reads use a separate,
// multi-connection read pool, matching spec.md §4.1's contract.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB

	writeReqs chan writeRequest
	closeOnce sync.Once
	closed    chan struct{}

	internMu  sync.Mutex
	internMap map[string]int64 // hash hex -> Hashes.id, per spec.md §4.3 step 4
}

type writeRequest struct {
	fn   func(*sql.Tx) error
	done chan error
}

const dsnParams = "?_pragma=busy_timeout(5000)"

// Open opens or creates the store at path, applies the schema (idempotent —
// "already exists" is not an error), configures WAL durability pragmas, and
// runs recover() to roll InProgress copy jobs back to Pending.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
		}
	}

	writeDB, err := sql.Open("sqlite", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
	}
	writeDB.SetMaxOpenConns(1) // single writer discipline

	readDB, err := sql.Open("sqlite", path+dsnParams)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
	}
	readDB.SetMaxOpenConns(max(4, runtime.NumCPU()))

	s := &Store{
		writeDB:   writeDB,
		readDB:    readDB,
		writeReqs: make(chan writeRequest, 64),
		closed:    make(chan struct{}),
		internMap: make(map[string]int64),
	}

	if err := s.applyPragmas(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
	}
	if err := s.applySchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
	}

	go s.writeLoop()

	if err := s.recover(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageOpen, err)
	}

	return s, nil
}

func (s *Store) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -65536", // ~64 MiB, negative = KiB
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.writeDB.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
		if _, err := s.readDB.Exec(p); err != nil {
			return fmt.Errorf("pragma %q (read): %w", p, err)
		}
	}
	return nil
}

func (s *Store) applySchema() error {
	_, err := s.writeDB.Exec(schema)
	return err
}

// writeLoop is the store's single writer actor. Every mutation — batch
// inserts, status updates, job claims — is serialized through this
// goroutine so SQLite's single-writer lock is never contended, while reads
// remain fully concurrent against readDB.
func (s *Store) writeLoop() {
	for req := range s.writeReqs {
		req.done <- s.runTx(req.fn)
	}
}

func (s *Store) runTx(fn func(*sql.Tx) error) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Write submits fn to the single writer goroutine and blocks until it has
// run inside its own transaction. This is the only supported way to mutate
// the store — direct access to writeDB is not exposed.
func (s *Store) Write(_ context.Context, fn func(*sql.Tx) error) error {
	req := writeRequest{fn: fn, done: make(chan error, 1)}
	select {
	case s.writeReqs <- req:
	case <-s.closed:
		return fmt.Errorf("store closed")
	}
	select {
	case err := <-req.done:
		return err
	case <-s.closed:
		return fmt.Errorf("store closed")
	}
}

// ReadDB returns the concurrent-safe read connection pool for queries that
// don't mutate state.
func (s *Store) ReadDB() *sql.DB { return s.readDB }

// Close stops the writer actor and closes both connection pools.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.writeReqs)
	})
	var firstErr error
	if err := s.writeDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// recover rolls every InProgress copy job back to Pending, decrementing its
// attempt count (not below zero), per spec.md §4.1 and the cancellation
// semantics of §5: a crash or forced close must leave no job stranded
// InProgress.
func (s *Store) recover() error {
	return s.Write(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE copy_jobs
			SET status = 'pending',
			    attempt_count = MAX(attempt_count - 1, 0),
			    started_utc = NULL
			WHERE status = 'in_progress'`)
		return err
	})
}
