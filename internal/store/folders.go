package store

import (
	"context"
	"database/sql"

	"dupvault/internal/model"
)

// CreateFolderNode inserts a destination folder tree node, returning its id.
func (s *Store) CreateFolderNode(ctx context.Context, fn model.FolderNode) (int64, error) {
	var id int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO folder_nodes
				(parent_id, display_name, proposed_relative_path, user_edited_name,
				 copy_enabled, unique_count, duplicate_count, total_size_bytes, why_explanation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fn.ParentID, fn.DisplayName, fn.ProposedRelativePath, fn.UserEditedName,
			fn.CopyEnabled, fn.UniqueCount, fn.DuplicateCount, fn.TotalSizeBytes, fn.WhyExplanation)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// FolderNodeByPath finds an existing node by its proposed relative path, the
// natural key the Plan Builder uses to avoid creating duplicate year/month
// folders across repeated grouping passes.
func (s *Store) FolderNodeByPath(path string) (model.FolderNode, bool, error) {
	row := s.readDB.QueryRow(`
		SELECT id, parent_id, display_name, proposed_relative_path, user_edited_name,
		       copy_enabled, unique_count, duplicate_count, total_size_bytes, why_explanation
		FROM folder_nodes WHERE proposed_relative_path = ?`, path)
	fn, err := scanFolderNode(row)
	if err == sql.ErrNoRows {
		return model.FolderNode{}, false, nil
	}
	if err != nil {
		return model.FolderNode{}, false, err
	}
	return fn, true, nil
}

// ListFolderNodes returns every node in the proposed destination tree.
func (s *Store) ListFolderNodes() ([]model.FolderNode, error) {
	rows, err := s.readDB.Query(`
		SELECT id, parent_id, display_name, proposed_relative_path, user_edited_name,
		       copy_enabled, unique_count, duplicate_count, total_size_bytes, why_explanation
		FROM folder_nodes ORDER BY proposed_relative_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FolderNode
	for rows.Next() {
		fn, err := scanFolderNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

// RenameFolderNode sets the user-edited display name, leaving the proposed
// path (and thus any already-created Copy Jobs' destinations) untouched
// until the next plan regeneration.
func (s *Store) RenameFolderNode(ctx context.Context, id int64, name string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE folder_nodes SET user_edited_name = ? WHERE id = ?`, name, id)
		return err
	})
}

// UpdateFolderRollup rewrites a node's aggregate counts and size, called
// after the Plan Builder finishes assigning Unique Files to it.
func (s *Store) UpdateFolderRollup(ctx context.Context, id, uniqueCount, duplicateCount, totalBytes int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE folder_nodes SET unique_count = ?, duplicate_count = ?, total_size_bytes = ? WHERE id = ?`,
			uniqueCount, duplicateCount, totalBytes, id)
		return err
	})
}

// SetFolderCopyEnabledCascade toggles a folder's copy_enabled flag and every
// descendant folder and Unique File beneath it, via a recursive CTE over the
// parent_id adjacency list (spec.md §4.4: "disabling a folder disables every
// file and subfolder beneath it").
func (s *Store) SetFolderCopyEnabledCascade(ctx context.Context, folderID int64, enabled bool) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			WITH RECURSIVE descendants(id) AS (
				SELECT id FROM folder_nodes WHERE id = ?
				UNION ALL
				SELECT f.id FROM folder_nodes f
				JOIN descendants d ON f.parent_id = d.id
			)
			UPDATE folder_nodes SET copy_enabled = ? WHERE id IN (SELECT id FROM descendants)`,
			folderID, enabled)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			WITH RECURSIVE descendants(id) AS (
				SELECT id FROM folder_nodes WHERE id = ?
				UNION ALL
				SELECT f.id FROM folder_nodes f
				JOIN descendants d ON f.parent_id = d.id
			)
			UPDATE unique_files SET copy_enabled = ?
			WHERE planned_folder_node_id IN (SELECT id FROM descendants)`,
			folderID, enabled)
		return err
	})
}

func scanFolderNode(row rowScanner) (model.FolderNode, error) {
	var fn model.FolderNode
	var parentID sql.NullInt64
	err := row.Scan(&fn.ID, &parentID, &fn.DisplayName, &fn.ProposedRelativePath, &fn.UserEditedName,
		&fn.CopyEnabled, &fn.UniqueCount, &fn.DuplicateCount, &fn.TotalSizeBytes, &fn.WhyExplanation)
	if err != nil {
		return fn, err
	}
	if parentID.Valid {
		id := parentID.Int64
		fn.ParentID = &id
	}
	return fn, nil
}
