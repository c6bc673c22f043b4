package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dupvault/internal/model"
)

// GetSettings reads the single ProjectSettings row, returning an error if
// InitSettings has not created it yet. The primary key is pinned to 1
// (spec.md §9's "enforce one row via primary-key upsert" decision).
func (s *Store) GetSettings() (model.ProjectSettings, error) {
	var ps model.ProjectSettings
	var categories string
	var created, modified string

	row := s.readDB.QueryRow(`
		SELECT id, project_name, hash_level, cpu_profile, target_path, current_state,
		       verify_by_default, archive_scanning_enabled, archive_max_size_mb,
		       archive_nested_enabled, archive_max_depth, movie_hash_chunk_size_mb,
		       enabled_categories, created_utc, last_modified_utc, last_error
		FROM project_settings WHERE id = 1`)
	err := row.Scan(&ps.ID, &ps.ProjectName, &ps.HashLevel, &ps.CPUProfile, &ps.TargetPath,
		&ps.CurrentState, &ps.VerifyByDefault, &ps.ArchiveScanningEnabled, &ps.ArchiveMaxSizeMB,
		&ps.ArchiveNestedEnabled, &ps.ArchiveMaxDepth, &ps.MovieHashChunkSizeMB,
		&categories, &created, &modified, &ps.LastError)
	if err == sql.ErrNoRows {
		return model.ProjectSettings{}, fmt.Errorf("project settings not initialized")
	}
	if err != nil {
		return model.ProjectSettings{}, err
	}
	ps.EnabledCategories = splitCategories(categories)
	ps.CreatedUtc, _ = time.Parse(time.RFC3339, created)
	ps.LastModifiedUtc, _ = time.Parse(time.RFC3339, modified)
	return ps, nil
}

// InitSettings creates the project settings row if absent. HashLevel is
// immutable thereafter (spec.md §3 cross-entity invariant 1).
func (s *Store) InitSettings(ctx context.Context, ps model.ProjectSettings) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO project_settings
				(id, project_name, hash_level, cpu_profile, target_path, current_state,
				 verify_by_default, archive_scanning_enabled, archive_max_size_mb,
				 archive_nested_enabled, archive_max_depth, movie_hash_chunk_size_mb,
				 enabled_categories, created_utc, last_modified_utc, last_error)
			VALUES (1, ?, ?, ?, ?, 'idle', ?, ?, ?, ?, ?, ?, ?, ?, ?, '')`,
			ps.ProjectName, ps.HashLevel, ps.CPUProfile, ps.TargetPath,
			ps.VerifyByDefault, ps.ArchiveScanningEnabled, ps.ArchiveMaxSizeMB,
			ps.ArchiveNestedEnabled, ps.ArchiveMaxDepth, ps.MovieHashChunkSizeMB,
			joinCategories(ps.EnabledCategories), now, now)
		return err
	})
}

// SetState persists a pipeline state transition (spec.md §4.7: "The state
// is persisted in Project Settings after every successful transition").
func (s *Store) SetState(ctx context.Context, state model.PipelineState) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE project_settings SET current_state = ?, last_modified_utc = ? WHERE id = 1`,
			state, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// SetLastError records the most recent fatal error on the settings row.
func (s *Store) SetLastError(ctx context.Context, msg string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE project_settings SET last_error = ?, last_modified_utc = ? WHERE id = 1`,
			msg, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// SetTargetPath updates the destination root.
func (s *Store) SetTargetPath(ctx context.Context, path string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE project_settings SET target_path = ?, last_modified_utc = ? WHERE id = 1`,
			path, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

func splitCategories(s string) []model.Category {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.Category, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.Category(p))
	}
	return out
}

func joinCategories(cats []model.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
