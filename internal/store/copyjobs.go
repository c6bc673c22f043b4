package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dupvault/internal/model"
)

// CreateJobsFromPlan purges every existing Copy Job and inserts one pending
// job per copy_enabled, folder-resolved Unique File — called once the Plan
// Builder has finished grouping and folder assignment (spec.md §4.5 step 1:
// "purge existing Copy Jobs, then insert one job per Unique File"). destRoot
// is folded into destination_full_path up front per the §4.5 formula
// (destination_root + folder.proposed_relative_path + representative.file_name);
// MarkJobCopied/MarkJobVerified overwrite it with the actual resolved path
// once a copy completes, since conflict resolution can rename the file.
func (s *Store) CreateJobsFromPlan(ctx context.Context, destRoot string) (int, error) {
	created := 0
	err := s.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM copy_jobs`); err != nil {
			return err
		}

		rows, err := tx.Query(`
			SELECT u.id, u.planned_file_name, f.proposed_relative_path
			FROM unique_files u
			JOIN folder_nodes f ON f.id = u.planned_folder_node_id
			WHERE u.copy_enabled = 1
			  AND u.planned_folder_node_id IS NOT NULL`)
		if err != nil {
			return err
		}
		type pending struct {
			uniqueFileID int64
			fileName     string
			folderPath   string
		}
		var todo []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.uniqueFileID, &p.fileName, &p.folderPath); err != nil {
				rows.Close()
				return err
			}
			todo = append(todo, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		stmt, err := tx.Prepare(`
			INSERT INTO copy_jobs (unique_file_id, destination_full_path, status, attempt_count)
			VALUES (?, ?, 'pending', 0)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range todo {
			dest := filepath.Join(destRoot, p.folderPath, p.fileName)
			if _, err := stmt.Exec(p.uniqueFileID, dest); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}

// ClaimPendingJobs atomically selects up to limit Pending jobs, marks them
// InProgress, and returns the join-projected detail each copy worker needs —
// the select-then-update happens inside one serialized transaction so two
// concurrent callers can never claim the same job (spec.md §4.5's claim
// exclusivity invariant).
func (s *Store) ClaimPendingJobs(ctx context.Context, limit int) ([]model.JobDetail, error) {
	var details []model.JobDetail
	err := s.Write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id FROM copy_jobs WHERE status = 'pending' ORDER BY id LIMIT ?`, limit)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}

		placeholders := make([]string, len(ids))
		args := make([]any, 0, len(ids)+1)
		now := time.Now().UTC().Format(time.RFC3339)
		args = append(args, now)
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		updateQuery := fmt.Sprintf(`
			UPDATE copy_jobs SET status = 'in_progress', started_utc = ?, attempt_count = attempt_count + 1
			WHERE id IN (%s)`, strings.Join(placeholders, ","))
		if _, err := tx.Exec(updateQuery, args...); err != nil {
			return err
		}

		selectQuery := fmt.Sprintf(`
			SELECT
				j.id, j.unique_file_id, j.destination_full_path, j.status, j.attempt_count,
				j.last_error, j.started_utc, j.completed_utc,
				u.id, u.hash_id, u.representative_file_instance_id, u.file_type_category,
				u.copy_enabled, u.planned_folder_node_id, u.planned_file_name,
				u.copied_utc, u.verified_utc, u.duplicate_count,
				h.id, h.hash_algorithm, h.hash_bytes, h.hash_hex, h.size_bytes, h.partial_hash_info, h.computed_utc,
				sr.path, fi.relative_path, fi.size_bytes,
				f.proposed_relative_path
			FROM copy_jobs j
			JOIN unique_files u ON u.id = j.unique_file_id
			JOIN hashes h ON h.id = u.hash_id
			JOIN file_instances fi ON fi.id = u.representative_file_instance_id
			JOIN scan_roots sr ON sr.id = fi.scan_root_id
			LEFT JOIN folder_nodes f ON f.id = u.planned_folder_node_id
			WHERE j.id IN (%s)
			ORDER BY j.id`, strings.Join(placeholders, ","))

		detailArgs := make([]any, len(ids))
		for i, id := range ids {
			detailArgs[i] = id
		}
		drows, err := tx.Query(selectQuery, detailArgs...)
		if err != nil {
			return err
		}
		defer drows.Close()

		for drows.Next() {
			var jd model.JobDetail
			var lastError string
			var startedUtc, completedUtc sql.NullString
			var copiedUtc, verifiedUtc sql.NullString
			var folderID sql.NullInt64
			var computedUtc string
			var rootPath, relPath string
			var folderPath sql.NullString

			if err := drows.Scan(
				&jd.Job.ID, &jd.Job.UniqueFileID, &jd.Job.DestinationFullPath, &jd.Job.Status, &jd.Job.AttemptCount,
				&lastError, &startedUtc, &completedUtc,
				&jd.UniqueFile.ID, &jd.UniqueFile.HashID, &jd.UniqueFile.RepresentativeInstanceID, &jd.UniqueFile.Category,
				&jd.UniqueFile.CopyEnabled, &folderID, &jd.UniqueFile.PlannedFileName,
				&copiedUtc, &verifiedUtc, &jd.UniqueFile.DuplicateCount,
				&jd.ExpectedHash.ID, &jd.ExpectedHash.Algorithm, &jd.ExpectedHash.HashBytes, &jd.ExpectedHash.HashHex,
				&jd.ExpectedHash.SizeBytes, &jd.ExpectedHash.PartialHashInfo, &computedUtc,
				&rootPath, &relPath, &jd.SourceSize,
				&folderPath,
			); err != nil {
				return err
			}

			jd.Job.LastError = lastError
			if startedUtc.Valid {
				t, _ := time.Parse(time.RFC3339, startedUtc.String)
				jd.Job.StartedUtc = &t
			}
			if completedUtc.Valid {
				t, _ := time.Parse(time.RFC3339, completedUtc.String)
				jd.Job.CompletedUtc = &t
			}
			if folderID.Valid {
				id := folderID.Int64
				jd.UniqueFile.PlannedFolderID = &id
			}
			if copiedUtc.Valid {
				t, _ := time.Parse(time.RFC3339, copiedUtc.String)
				jd.UniqueFile.CopiedUtc = &t
			}
			if verifiedUtc.Valid {
				t, _ := time.Parse(time.RFC3339, verifiedUtc.String)
				jd.UniqueFile.VerifiedUtc = &t
			}
			jd.ExpectedHash.ComputedUtc, _ = time.Parse(time.RFC3339, computedUtc)
			jd.SourcePath = filepath.Join(rootPath, relPath)
			jd.FileName = jd.UniqueFile.PlannedFileName
			if folderPath.Valid {
				jd.FolderPath = folderPath.String
			}

			details = append(details, jd)
		}
		return drows.Err()
	})
	return details, err
}

// MarkJobCopied transitions a job to Copied on successful atomic rename,
// recording actualPath — which may differ from the planned
// destination_full_path when conflict resolution renamed the file
// (spec.md §4.5 step 9).
func (s *Store) MarkJobCopied(ctx context.Context, id int64, actualPath string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE copy_jobs SET status = 'copied', destination_full_path = ?, completed_utc = ? WHERE id = ?`,
			actualPath, time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
}

// MarkJobVerified transitions a job to Verified after a successful
// independent re-hash, recording actualPath for the same reason
// MarkJobCopied does.
func (s *Store) MarkJobVerified(ctx context.Context, id int64, actualPath string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE copy_jobs SET status = 'verified', destination_full_path = ?, completed_utc = ? WHERE id = ?`,
			actualPath, time.Now().UTC().Format(time.RFC3339), id)
		return err
	})
}

// MarkJobError records a failed attempt. Callers decide retryability;
// non-retryable failures should also call MarkJobSkipped instead once
// retries are exhausted.
func (s *Store) MarkJobError(ctx context.Context, id int64, msg string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE copy_jobs SET status = 'error', last_error = ? WHERE id = ?`, msg, id)
		return err
	})
}

// MarkJobSkipped marks a job permanently unresolvable — source vanished or
// a non-retryable permission error.
func (s *Store) MarkJobSkipped(ctx context.Context, id int64, reason string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE copy_jobs SET status = 'skipped', last_error = ? WHERE id = ?`, reason, id)
		return err
	})
}

// ResetJobToPending returns an In Progress job to Pending, decrementing
// attempt_count the same way recover() does — a pause or cancellation
// interrupting a job mid-copy is not a recorded failure, so it must not
// cost the job one of its maxAttempts tries.
func (s *Store) ResetJobToPending(ctx context.Context, id int64) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE copy_jobs
			SET status = 'pending',
			    attempt_count = MAX(attempt_count - 1, 0),
			    started_utc = NULL
			WHERE id = ?`, id)
		return err
	})
}

// CopiedJobsByUniqueFile returns every Copied or Verified Copy Job keyed by
// its Unique File id, the lookup the Verification Post-Stage uses to find
// each representative's actual destination path (spec.md §4.6).
func (s *Store) CopiedJobsByUniqueFile() (map[int64]model.CopyJob, error) {
	rows, err := s.readDB.Query(`
		SELECT id, unique_file_id, destination_full_path, status, attempt_count,
		       last_error, started_utc, completed_utc
		FROM copy_jobs WHERE status IN ('copied', 'verified')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]model.CopyJob)
	for rows.Next() {
		var j model.CopyJob
		var startedUtc, completedUtc sql.NullString
		if err := rows.Scan(&j.ID, &j.UniqueFileID, &j.DestinationFullPath, &j.Status, &j.AttemptCount,
			&j.LastError, &startedUtc, &completedUtc); err != nil {
			return nil, err
		}
		if startedUtc.Valid {
			t, _ := time.Parse(time.RFC3339, startedUtc.String)
			j.StartedUtc = &t
		}
		if completedUtc.Valid {
			t, _ := time.Parse(time.RFC3339, completedUtc.String)
			j.CompletedUtc = &t
		}
		out[j.UniqueFileID] = j
	}
	return out, rows.Err()
}

// CopyJobCounts returns the count of jobs in each status, used for progress
// rollups and the "ready to copy" summary.
func (s *Store) CopyJobCounts() (map[model.CopyJobStatus]int64, error) {
	rows, err := s.readDB.Query(`SELECT status, COUNT(*) FROM copy_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.CopyJobStatus]int64)
	for rows.Next() {
		var status model.CopyJobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
