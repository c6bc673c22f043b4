package store

import (
	"context"
	"database/sql"
	"time"

	"dupvault/internal/model"
)

// batchSize is the maximum number of rows per commit for bulk inserts,
// mirroring spec.md §4.1's "transactions of up to 10 000 rows per commit".
const batchSize = 10000

// BatchInsertFileInstances inserts candidate rows in transactions of up to
// batchSize, reusing one prepared statement per batch (grounded in the
// teacher's CheckpointDB.flushLocked prepare-once-exec-many pattern). Rows
// that violate the (scan_root_id, relative_path) uniqueness constraint are
// silently ignored — rescans are safe. Returns the number of rows actually
// inserted.
func (s *Store) BatchInsertFileInstances(ctx context.Context, rows []model.FileInstance) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		err := s.Write(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`
				INSERT OR IGNORE INTO file_instances
					(scan_root_id, relative_path, file_name, extension, size_bytes,
					 modified_utc, status, category, discovered_utc)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()

			now := time.Now().UTC().Format(time.RFC3339)
			for _, r := range chunk {
				res, err := stmt.Exec(r.ScanRootID, r.RelativePath, r.FileName, r.Extension,
					r.SizeBytes, r.ModifiedUtc.UTC().Format(time.RFC3339), r.Status, r.Category, now)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n > 0 {
					inserted++
				}
			}
			return nil
		})
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// UpdateStatus sets a single File Instance's pipeline status.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status model.FileStatus) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE file_instances SET status = ? WHERE id = ?`, status, id)
		return err
	})
}

// SetHash assigns a File Instance's hash reference and moves it to Hashed.
func (s *Store) SetHash(ctx context.Context, instanceID, hashID int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE file_instances SET hash_id = ?, status = 'hashed' WHERE id = ?`,
			hashID, instanceID)
		return err
	})
}

// SetError records a per-file error and transitions the instance to Error.
func (s *Store) SetError(ctx context.Context, id int64, kind model.ErrorKind, msg string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE file_instances SET status = 'error', error_kind = ?, error_message = ? WHERE id = ?`,
			kind, msg, id)
		return err
	})
}

// FilesPendingHash returns File Instances with no hash reference yet,
// ordered by size descending — "largest first, to parallelize the tail
// latency" (spec.md §4.3 Feed). limit <= 0 means unlimited.
func (s *Store) FilesPendingHash(limit int) ([]model.FileInstance, error) {
	query := `
		SELECT id, scan_root_id, relative_path, file_name, extension, size_bytes,
		       modified_utc, status, category, hash_id, discovered_utc, error_kind, error_message
		FROM file_instances
		WHERE status IN ('discovered', 'hash_pending') AND hash_id IS NULL
		ORDER BY size_bytes DESC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.readDB.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.readDB.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileInstances(rows)
}

// FileInstanceByID fetches a single instance by id.
func (s *Store) FileInstanceByID(id int64) (model.FileInstance, error) {
	row := s.readDB.QueryRow(`
		SELECT id, scan_root_id, relative_path, file_name, extension, size_bytes,
		       modified_utc, status, category, hash_id, discovered_utc, error_kind, error_message
		FROM file_instances WHERE id = ?`, id)
	return scanFileInstance(row)
}

// HashedFileInstances returns every instance with a non-null hash reference,
// the set the Plan Builder groups (spec.md §4.4 step 2).
func (s *Store) HashedFileInstances() ([]model.FileInstance, error) {
	rows, err := s.readDB.Query(`
		SELECT id, scan_root_id, relative_path, file_name, extension, size_bytes,
		       modified_utc, status, category, hash_id, discovered_utc, error_kind, error_message
		FROM file_instances WHERE hash_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileInstances(rows)
}

// InstancesForHash returns every File Instance referencing hashID, used to
// compute DuplicateCount and pick the representative.
func (s *Store) InstancesForHash(hashID int64) ([]model.FileInstance, error) {
	rows, err := s.readDB.Query(`
		SELECT id, scan_root_id, relative_path, file_name, extension, size_bytes,
		       modified_utc, status, category, hash_id, discovered_utc, error_kind, error_message
		FROM file_instances WHERE hash_id = ?`, hashID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFileInstances(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileInstance(row rowScanner) (model.FileInstance, error) {
	var r model.FileInstance
	var modified, discovered string
	var hashID sql.NullInt64
	err := row.Scan(&r.ID, &r.ScanRootID, &r.RelativePath, &r.FileName, &r.Extension,
		&r.SizeBytes, &modified, &r.Status, &r.Category, &hashID, &discovered,
		&r.ErrorKind, &r.ErrorMessage)
	if err != nil {
		return r, err
	}
	r.ModifiedUtc, _ = time.Parse(time.RFC3339, modified)
	r.DiscoveredUtc, _ = time.Parse(time.RFC3339, discovered)
	if hashID.Valid {
		id := hashID.Int64
		r.HashID = &id
	}
	return r, nil
}

func scanFileInstances(rows *sql.Rows) ([]model.FileInstance, error) {
	var out []model.FileInstance
	for rows.Next() {
		r, err := scanFileInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
