package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"dupvault/internal/model"
)

// GetOrCreateHash interns a content hash to a single Hashes row (spec.md
// §4.3 step 4). It consults the in-memory hex→id map first; on a miss it
// performs an insert-or-fetch in one SQL round trip through the writer and
// updates the map, so two concurrent workers producing the same hash are
// guaranteed to observe the same id and exactly one row results.
func (s *Store) GetOrCreateHash(ctx context.Context, algo model.HashAlgorithm, raw []byte, size int64, partialInfo string) (int64, error) {
	hexDigest := hex.EncodeToString(raw)

	s.internMu.Lock()
	if id, ok := s.internMap[hexDigest]; ok {
		s.internMu.Unlock()
		return id, nil
	}
	s.internMu.Unlock()

	var id int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id FROM hashes WHERE hash_bytes = ?`, raw)
		err := row.Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.Exec(`
			INSERT INTO hashes (hash_algorithm, hash_bytes, hash_hex, size_bytes, partial_hash_info, computed_utc)
			VALUES (?, ?, ?, ?, ?, ?)`,
			algo, raw, hexDigest, size, partialInfo, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			// Another writer beat us to it between the SELECT and INSERT —
			// impossible under the single-writer actor, but defensive
			// against a future multi-writer change.
			row := tx.QueryRow(`SELECT id FROM hashes WHERE hash_bytes = ?`, raw)
			return row.Scan(&id)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	s.internMu.Lock()
	s.internMap[hexDigest] = id
	s.internMu.Unlock()

	return id, nil
}

// HashByID fetches a Hash row.
func (s *Store) HashByID(id int64) (model.Hash, error) {
	var h model.Hash
	var computed string
	row := s.readDB.QueryRow(`
		SELECT id, hash_algorithm, hash_bytes, hash_hex, size_bytes, partial_hash_info, computed_utc
		FROM hashes WHERE id = ?`, id)
	err := row.Scan(&h.ID, &h.Algorithm, &h.HashBytes, &h.HashHex, &h.SizeBytes, &h.PartialHashInfo, &computed)
	if err != nil {
		return h, err
	}
	h.ComputedUtc, _ = time.Parse(time.RFC3339, computed)
	return h, nil
}

// DistinctHashIDs returns every Hash id referenced by at least one File
// Instance — the set the Plan Builder groups.
func (s *Store) DistinctHashIDs() ([]int64, error) {
	rows, err := s.readDB.Query(`SELECT DISTINCT hash_id FROM file_instances WHERE hash_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
