package store

// schema is the embedded, SQL-equivalent contract from spec.md §6. Column
// names and table names are part of that contract; types follow SQLite's
// dynamic typing with STRICT-ish discipline via CHECK constraints where the
// spec enumerates a closed set of values.
const schema = `
CREATE TABLE IF NOT EXISTS project_settings (
	id                        INTEGER PRIMARY KEY CHECK (id = 1),
	project_name              TEXT NOT NULL DEFAULT '',
	hash_level                TEXT NOT NULL,
	cpu_profile               TEXT NOT NULL DEFAULT 'balanced',
	target_path               TEXT NOT NULL DEFAULT '',
	current_state             TEXT NOT NULL DEFAULT 'idle',
	verify_by_default         INTEGER NOT NULL DEFAULT 0,
	archive_scanning_enabled  INTEGER NOT NULL DEFAULT 0,
	archive_max_size_mb       INTEGER NOT NULL DEFAULT 0,
	archive_nested_enabled    INTEGER NOT NULL DEFAULT 0,
	archive_max_depth         INTEGER NOT NULL DEFAULT 0,
	movie_hash_chunk_size_mb  INTEGER NOT NULL DEFAULT 0,
	enabled_categories        TEXT NOT NULL DEFAULT '',
	created_utc               TEXT NOT NULL,
	last_modified_utc         TEXT NOT NULL,
	last_error                TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scan_roots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT NOT NULL UNIQUE,
	label         TEXT NOT NULL DEFAULT '',
	root_type     TEXT NOT NULL DEFAULT 'unknown',
	is_enabled    INTEGER NOT NULL DEFAULT 1,
	last_scan_utc TEXT NOT NULL DEFAULT '',
	file_count    INTEGER NOT NULL DEFAULT 0,
	total_bytes   INTEGER NOT NULL DEFAULT 0,
	added_utc     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hashes (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_algorithm    TEXT NOT NULL,
	hash_bytes        BLOB NOT NULL UNIQUE,
	hash_hex          TEXT NOT NULL,
	size_bytes        INTEGER NOT NULL,
	partial_hash_info TEXT NOT NULL DEFAULT '',
	computed_utc      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_instances (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_root_id   INTEGER NOT NULL REFERENCES scan_roots(id) ON DELETE CASCADE,
	relative_path  TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	extension      TEXT NOT NULL DEFAULT '',
	size_bytes     INTEGER NOT NULL,
	modified_utc   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'discovered',
	category       TEXT NOT NULL DEFAULT 'other',
	hash_id        INTEGER REFERENCES hashes(id),
	discovered_utc TEXT NOT NULL,
	error_kind     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	UNIQUE (scan_root_id, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_file_instances_extension  ON file_instances(extension);
CREATE INDEX IF NOT EXISTS idx_file_instances_status     ON file_instances(status);
CREATE INDEX IF NOT EXISTS idx_file_instances_scan_root  ON file_instances(scan_root_id);
CREATE INDEX IF NOT EXISTS idx_file_instances_hash       ON file_instances(hash_id);
CREATE INDEX IF NOT EXISTS idx_file_instances_size       ON file_instances(size_bytes);

CREATE TABLE IF NOT EXISTS folder_nodes (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id              INTEGER REFERENCES folder_nodes(id) ON DELETE CASCADE,
	display_name           TEXT NOT NULL,
	proposed_relative_path TEXT NOT NULL UNIQUE,
	user_edited_name       TEXT NOT NULL DEFAULT '',
	copy_enabled           INTEGER NOT NULL DEFAULT 1,
	unique_count           INTEGER NOT NULL DEFAULT 0,
	duplicate_count        INTEGER NOT NULL DEFAULT 0,
	total_size_bytes       INTEGER NOT NULL DEFAULT 0,
	why_explanation        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS unique_files (
	id                               INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_id                          INTEGER NOT NULL UNIQUE REFERENCES hashes(id),
	representative_file_instance_id  INTEGER NOT NULL REFERENCES file_instances(id),
	file_type_category               TEXT NOT NULL DEFAULT 'other',
	copy_enabled                     INTEGER NOT NULL DEFAULT 1,
	planned_folder_node_id           INTEGER REFERENCES folder_nodes(id),
	planned_file_name                TEXT NOT NULL DEFAULT '',
	copied_utc                       TEXT,
	verified_utc                     TEXT,
	duplicate_count                  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS copy_jobs (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	unique_file_id         INTEGER NOT NULL REFERENCES unique_files(id),
	destination_full_path  TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'pending',
	attempt_count          INTEGER NOT NULL DEFAULT 0,
	last_error             TEXT NOT NULL DEFAULT '',
	started_utc            TEXT,
	completed_utc          TEXT
);

CREATE INDEX IF NOT EXISTS idx_copy_jobs_status ON copy_jobs(status, id);
`
