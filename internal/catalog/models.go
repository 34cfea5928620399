package catalog

import "time"

// ItemType is the catalog row's identity-preserving type tag (I3: a type
// change is modeled as delete+insert, never an in-place update).
type ItemType string

const (
	TypeAlbum ItemType = "album"
	TypePhoto ItemType = "photo"
	TypeVideo ItemType = "video"
)

// Item is a catalog row identified by its normalized relative path.
type Item struct {
	ID         int64
	Path       string
	ParentPath string
	Type       ItemType
	MTime      time.Time
	Width      *int
	Height     *int
	SizeBytes  int64
	UpdatedAt  time.Time
}

// ArtifactStatus is the shared status vocabulary for thumb_status and
// hls_status rows.
type ArtifactStatus string

const (
	StatusPending    ArtifactStatus = "pending"
	StatusProcessing ArtifactStatus = "processing"
	StatusExists     ArtifactStatus = "exists"
	StatusFailed     ArtifactStatus = "failed"
	StatusMissing    ArtifactStatus = "missing"
)

// ThumbStatus tracks the thumbnail generation lifecycle for one path.
type ThumbStatus struct {
	Path      string
	Status    ArtifactStatus
	MTime     *time.Time
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// HLSStatus tracks the HLS generation lifecycle for one video path.
type HLSStatus struct {
	Path         string
	Status       ArtifactStatus
	PlaylistPath string
	DurationS    float64
	Attempts     int
	LastError    string
	UpdatedAt    time.Time
}

// IndexProgressStatus is the walk state recorded at the single
// "last_processed_path" row.
type IndexProgressStatus string

const (
	ProgressIdle     IndexProgressStatus = "idle"
	ProgressBuilding IndexProgressStatus = "building"
	ProgressPaused   IndexProgressStatus = "paused"
)

// IndexProgress is the resume pointer used to continue an interrupted walk.
type IndexProgress struct {
	Key       string
	Value     string
	Status    IndexProgressStatus
	UpdatedAt time.Time
}

// ViewHistory records the last time a user viewed an item. Append-only in
// spirit: a write with an older viewed_at than the stored value is a no-op.
type ViewHistory struct {
	UserID   string
	ItemPath string
	ViewedAt time.Time
}
