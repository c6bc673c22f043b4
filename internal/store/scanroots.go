package store

import (
	"context"
	"database/sql"
	"time"

	"dupvault/internal/model"
)

// AddScanRoot inserts a new scan root, returning its id. A duplicate path is
// reported as an error — callers should check ListScanRoots first if
// idempotent "add if absent" behavior is wanted.
func (s *Store) AddScanRoot(ctx context.Context, root model.ScanRoot) (int64, error) {
	var id int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO scan_roots (path, label, root_type, is_enabled, added_utc)
			VALUES (?, ?, ?, ?, ?)`,
			root.Path, root.Label, root.RootType, root.IsEnabled,
			time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListScanRoots returns every scan root, enabled or not.
func (s *Store) ListScanRoots() ([]model.ScanRoot, error) {
	rows, err := s.readDB.Query(`
		SELECT id, path, label, root_type, is_enabled, last_scan_utc, file_count, total_bytes, added_utc
		FROM scan_roots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScanRoot
	for rows.Next() {
		var r model.ScanRoot
		var lastScan, added string
		if err := rows.Scan(&r.ID, &r.Path, &r.Label, &r.RootType, &r.IsEnabled,
			&lastScan, &r.FileCount, &r.TotalBytes, &added); err != nil {
			return nil, err
		}
		r.LastScanUtc, _ = time.Parse(time.RFC3339, lastScan)
		r.AddedUtc, _ = time.Parse(time.RFC3339, added)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnabledScanRoots returns only roots with IsEnabled = true.
func (s *Store) EnabledScanRoots() ([]model.ScanRoot, error) {
	all, err := s.ListScanRoots()
	if err != nil {
		return nil, err
	}
	var out []model.ScanRoot
	for _, r := range all {
		if r.IsEnabled {
			out = append(out, r)
		}
	}
	return out, nil
}

// SetScanRootEnabled toggles a root's enabled flag.
func (s *Store) SetScanRootEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE scan_roots SET is_enabled = ? WHERE id = ?`, enabled, id)
		return err
	})
}

// UpdateScanRootStats records post-scan file count/byte totals and the scan
// timestamp.
func (s *Store) UpdateScanRootStats(ctx context.Context, id, fileCount, totalBytes int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE scan_roots SET file_count = ?, total_bytes = ?, last_scan_utc = ? WHERE id = ?`,
			fileCount, totalBytes, time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
}

// ClearRoot purges every Copy Job, Unique File and Folder Node, then deletes
// the scan root's File Instances and any Hashes no instance references,
// since a topology change invalidates any existing plan (spec.md §4.2
// "Rescan policy"). The plan rows go first because unique_files references
// file_instances without ON DELETE CASCADE.
func (s *Store) ClearRoot(ctx context.Context, rootID int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM copy_jobs`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM unique_files`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM folder_nodes`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM file_instances WHERE scan_root_id = ?`, rootID); err != nil {
			return err
		}
		return pruneOrphanHashes(tx)
	})
}

// pruneOrphanHashes deletes Hash rows with no referencing File Instance.
// Called during rescan only, per spec.md §4.1's failure-semantics note.
func pruneOrphanHashes(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DELETE FROM hashes
		WHERE id NOT IN (SELECT DISTINCT hash_id FROM file_instances WHERE hash_id IS NOT NULL)`)
	return err
}
