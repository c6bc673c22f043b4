// Package model defines the entity types persisted by the Persistent Store
// and passed between pipeline stages.
package model

import "time"

// HashAlgorithm identifies the content-hash function chosen for a project.
// It is fixed for the project's lifetime once a project is created.
type HashAlgorithm string

const (
	HashSHA1       HashAlgorithm = "sha1"
	HashSHA256     HashAlgorithm = "sha256"
	HashSHA3_256   HashAlgorithm = "sha3-256"
	HashSizeName   HashAlgorithm = "size-name" // non-authoritative preview mode
)

// CPUProfile selects the hashing/copy worker concurrency tier.
type CPUProfile string

const (
	ProfileEco      CPUProfile = "eco"
	ProfileBalanced CPUProfile = "balanced"
	ProfileFast     CPUProfile = "fast"
	ProfileMax      CPUProfile = "max"
)

// PipelineState is one node of the orchestrator's state machine (spec.md §4.7).
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateScanning     PipelineState = "scanning"
	StateScanPaused   PipelineState = "scan_paused"
	StateHashing      PipelineState = "hashing"
	StateHashPaused   PipelineState = "hash_paused"
	StatePlanning     PipelineState = "planning"
	StateReadyToCopy  PipelineState = "ready_to_copy"
	StateCopying      PipelineState = "copying"
	StateCopyPaused   PipelineState = "copy_paused"
	StateCompleted    PipelineState = "completed"
	StateFaulted      PipelineState = "faulted"
)

// VolumeType tags the storage medium a scan root lives on.
type VolumeType string

const (
	VolumeFixed     VolumeType = "fixed"
	VolumeRemovable VolumeType = "removable"
	VolumeNetwork   VolumeType = "network"
	VolumeOptical   VolumeType = "optical"
	VolumeUnknown   VolumeType = "unknown"
)

// Category classifies a file by its role for planning/display purposes.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryMovie    Category = "movie"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryArchive  Category = "archive"
	CategoryOther    Category = "other"
)

// FileStatus is a File Instance's position in the pipeline.
type FileStatus string

const (
	FileDiscovered   FileStatus = "discovered"
	FileFilteredOut  FileStatus = "filtered_out"
	FileHashPending  FileStatus = "hash_pending"
	FileHashed       FileStatus = "hashed"
	FileCopyPlanned  FileStatus = "copy_planned"
	FileCopied       FileStatus = "copied"
	FileVerified     FileStatus = "verified"
	FileError        FileStatus = "error"
)

// ErrorKind distinguishes retryable from terminal per-file failures.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorTransient  ErrorKind = "transient"
	ErrorPermission ErrorKind = "permission"
	ErrorVanished   ErrorKind = "vanished"
)

// CopyJobStatus is a Copy Job's lifecycle state.
type CopyJobStatus string

const (
	JobPending    CopyJobStatus = "pending"
	JobInProgress CopyJobStatus = "in_progress"
	JobCopied     CopyJobStatus = "copied"
	JobVerified   CopyJobStatus = "verified"
	JobSkipped    CopyJobStatus = "skipped"
	JobError      CopyJobStatus = "error"
)

// ProjectSettings is the single-row settings table (spec.md §3, §6).
type ProjectSettings struct {
	ID                     int64
	ProjectName            string
	HashLevel              HashAlgorithm
	CPUProfile             CPUProfile
	TargetPath             string
	CurrentState           PipelineState
	VerifyByDefault        bool
	ArchiveScanningEnabled bool
	ArchiveMaxSizeMB       int64
	ArchiveNestedEnabled   bool
	ArchiveMaxDepth        int
	MovieHashChunkSizeMB   int64
	EnabledCategories      []Category
	CreatedUtc             time.Time
	LastModifiedUtc        time.Time
	LastError              string
}

// ScanRoot is a user-chosen source directory.
type ScanRoot struct {
	ID         int64
	Path       string
	Label      string
	RootType   VolumeType
	IsEnabled  bool
	LastScanUtc time.Time
	FileCount  int64
	TotalBytes int64
	AddedUtc   time.Time
}

// FileInstance is one discovered occurrence of a file under a scan root.
type FileInstance struct {
	ID            int64
	ScanRootID    int64
	RelativePath  string
	FileName      string
	Extension     string
	SizeBytes     int64
	ModifiedUtc   time.Time
	Status        FileStatus
	Category      Category
	HashID        *int64
	DiscoveredUtc time.Time
	ErrorKind     ErrorKind
	ErrorMessage  string
}

// Hash is one distinct content fingerprint seen within a project.
type Hash struct {
	ID              int64
	Algorithm       HashAlgorithm
	HashBytes       []byte
	HashHex         string
	SizeBytes       int64
	PartialHashInfo string // chunk size (MB) for the hybrid movie fingerprint, empty otherwise
	ComputedUtc     time.Time
}

// UniqueFile groups all File Instances sharing a Hash.
type UniqueFile struct {
	ID                       int64
	HashID                   int64
	RepresentativeInstanceID int64
	Category                 Category
	CopyEnabled              bool
	PlannedFolderID          *int64
	PlannedFileName          string
	CopiedUtc                *time.Time
	VerifiedUtc              *time.Time
	DuplicateCount           int64
}

// FolderNode is a node in the proposed destination tree.
type FolderNode struct {
	ID                   int64
	ParentID             *int64
	DisplayName          string
	ProposedRelativePath string
	UserEditedName       string
	CopyEnabled          bool
	UniqueCount          int64
	DuplicateCount       int64
	TotalSizeBytes       int64
	WhyExplanation       string
}

// CopyJob is one unit of work to materialize a Unique File at a destination path.
type CopyJob struct {
	ID                  int64
	UniqueFileID         int64
	DestinationFullPath string
	Status              CopyJobStatus
	AttemptCount        int
	LastError           string
	StartedUtc          *time.Time
	CompletedUtc        *time.Time
}

// JobDetail is the join-projected row claim_pending_jobs returns — everything
// a copy worker needs without a further round trip.
type JobDetail struct {
	Job            CopyJob
	UniqueFile     UniqueFile
	SourcePath     string // absolute path of the representative instance
	SourceSize     int64
	ExpectedHash   Hash
	FolderPath     string // destination folder's proposed relative path
	FileName       string
}
