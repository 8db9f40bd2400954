package models

import "time"

type ActivityStatus string

const (
	ActivityStarted    ActivityStatus = "STARTED"
	ActivityInProgress ActivityStatus = "IN_PROGRESS"
	ActivityCompleted  ActivityStatus = "COMPLETED"
	ActivityCancelled  ActivityStatus = "CANCELLED"
)

// Terminal reports whether no further transitions or file mutations are allowed.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityCompleted || s == ActivityCancelled
}

// Activity is a bounded collection effort for one supplier.
// TotalFiles, FailedFiles and ReuploadedFiles are derived from the
// activity's files and recomputed after each file mutation.
type Activity struct {
	ID              int64
	EvaluatorID     int64
	SupplierID      int64
	Status          ActivityStatus
	StartedBy       int64
	StartedAt       time.Time
	EndedBy         *int64
	EndedAt         *time.Time
	TotalFiles      int
	FailedFiles     int
	ReuploadedFiles int
}

// ActivityCounters is the denormalised summary stored on the activity row.
type ActivityCounters struct {
	TotalFiles      int
	FailedFiles     int
	ReuploadedFiles int
}

// ActivityArchive points at the zip built when an activity completes.
type ActivityArchive struct {
	ActivityID int64
	StorageKey string
	Digest     string
	Size       int64
	FileCount  int
	CreatedAt  time.Time
}
