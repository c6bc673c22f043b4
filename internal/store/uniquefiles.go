package store

import (
	"context"
	"database/sql"
	"time"

	"dupvault/internal/model"
)

// ClearPlan deletes every Unique File and Folder Node, used by the Plan
// Builder before regenerating (spec.md §4.4 step 1: "clear prior plan").
func (s *Store) ClearPlan(ctx context.Context) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM copy_jobs`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM unique_files`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM folder_nodes`)
		return err
	})
}

// CreateUniqueFile inserts one Unique File row for a Hash group, returning
// its id.
func (s *Store) CreateUniqueFile(ctx context.Context, uf model.UniqueFile) (int64, error) {
	var id int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO unique_files
				(hash_id, representative_file_instance_id, file_type_category,
				 copy_enabled, planned_folder_node_id, planned_file_name, duplicate_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uf.HashID, uf.RepresentativeInstanceID, uf.Category,
			uf.CopyEnabled, uf.PlannedFolderID, uf.PlannedFileName, uf.DuplicateCount)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// SetUniqueFileFolder assigns a Unique File to a planned Folder Node with a
// final file name, resolved after sibling conflicts are suffixed.
func (s *Store) SetUniqueFileFolder(ctx context.Context, id, folderID int64, fileName string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE unique_files SET planned_folder_node_id = ?, planned_file_name = ? WHERE id = ?`,
			folderID, fileName, id)
		return err
	})
}

// SetUniqueFileCopyEnabled toggles whether a Unique File is included in the
// next Copy Job generation pass — the leaf-level half of cascading
// enable/disable (spec.md §4.4's folder-toggle invariant).
func (s *Store) SetUniqueFileCopyEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE unique_files SET copy_enabled = ? WHERE id = ?`, enabled, id)
		return err
	})
}

// MarkUniqueFileCopied/Verified record terminal plan-execution timestamps.
func (s *Store) MarkUniqueFileCopied(ctx context.Context, id int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE unique_files SET copied_utc = ? WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
}

func (s *Store) MarkUniqueFileVerified(ctx context.Context, id int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE unique_files SET verified_utc = ? WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
}

// ListUniqueFiles returns every Unique File, optionally restricted to those
// with copy enabled.
func (s *Store) ListUniqueFiles(onlyCopyEnabled bool) ([]model.UniqueFile, error) {
	query := `
		SELECT id, hash_id, representative_file_instance_id, file_type_category,
		       copy_enabled, planned_folder_node_id, planned_file_name,
		       copied_utc, verified_utc, duplicate_count
		FROM unique_files`
	if onlyCopyEnabled {
		query += ` WHERE copy_enabled = 1`
	}
	rows, err := s.readDB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UniqueFile
	for rows.Next() {
		uf, err := scanUniqueFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, uf)
	}
	return out, rows.Err()
}

// UniqueFileByID fetches a single Unique File.
func (s *Store) UniqueFileByID(id int64) (model.UniqueFile, error) {
	row := s.readDB.QueryRow(`
		SELECT id, hash_id, representative_file_instance_id, file_type_category,
		       copy_enabled, planned_folder_node_id, planned_file_name,
		       copied_utc, verified_utc, duplicate_count
		FROM unique_files WHERE id = ?`, id)
	return scanUniqueFile(row)
}

func scanUniqueFile(row rowScanner) (model.UniqueFile, error) {
	var uf model.UniqueFile
	var folderID sql.NullInt64
	var copiedUtc, verifiedUtc sql.NullString
	err := row.Scan(&uf.ID, &uf.HashID, &uf.RepresentativeInstanceID, &uf.Category,
		&uf.CopyEnabled, &folderID, &uf.PlannedFileName, &copiedUtc, &verifiedUtc, &uf.DuplicateCount)
	if err != nil {
		return uf, err
	}
	if folderID.Valid {
		id := folderID.Int64
		uf.PlannedFolderID = &id
	}
	if copiedUtc.Valid {
		t, _ := time.Parse(time.RFC3339, copiedUtc.String)
		uf.CopiedUtc = &t
	}
	if verifiedUtc.Valid {
		t, _ := time.Parse(time.RFC3339, verifiedUtc.String)
		uf.VerifiedUtc = &t
	}
	return uf, nil
}
