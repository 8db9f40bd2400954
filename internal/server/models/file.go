package models

import "time"

type FileStatus string

const (
	FileUploading    FileStatus = "UPLOADING"
	FileValidating   FileStatus = "VALIDATING"
	FileValidOK      FileStatus = "VALID_OK"
	FileValidFailed  FileStatus = "VALID_FAILED"
	FileUploadFailed FileStatus = "UPLOAD_FAILED"
)

// Failed reports whether the file blocks activity completion.
func (s FileStatus) Failed() bool {
	return s == FileValidFailed || s == FileUploadFailed
}

// Final reports whether the status admits no further transitions.
func (s FileStatus) Final() bool {
	return s == FileValidOK || s.Failed()
}

var fileTransitions = map[FileStatus][]FileStatus{
	FileUploading:  {FileValidating, FileUploadFailed},
	FileValidating: {FileValidOK, FileValidFailed, FileUploadFailed},
}

// CanTransition reports whether from → to is a legal forward move.
func CanTransition(from, to FileStatus) bool {
	for _, s := range fileTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UploadedFile is one upload attempt inside an activity. Version counts
// attempts per OriginalName within the activity, starting at 1.
type UploadedFile struct {
	ID            int64
	ActivityID    int64
	OriginalName  string
	StorageKey    string
	Size          int64
	Status        FileStatus
	FailureReason string
	Version       int
	ReuploadOf    *int64
	UploadedBy    int64
	UploadedAt    time.Time
	ValidatedAt   *time.Time
	ExpiresAt     *time.Time
}

// FileUploadTask is handed back to the uploader: PUT the bytes to URL, then
// confirm the upload for FileID.
type FileUploadTask struct {
	FileID     int64
	Version    int
	StorageKey string
	URL        string
}

// ExpiringFile is a validated file with an expiry date, joined with the
// owning activity's tenant and its reminder progress.
type ExpiringFile struct {
	FileID       int64
	ActivityID   int64
	EvaluatorID  int64
	SupplierID   int64
	OriginalName string
	ExpiresAt    time.Time
	LastStepSent int
	LastSentAt   *time.Time
}
