// Package storage is the object-storage boundary: presigned upload and
// download URLs for clients, plus direct reads and writes used when
// building activity archives.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is implemented by S3Store and MemoryStore.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

func activityPrefix(evaluatorID, supplierID, activityID int64) string {
	return fmt.Sprintf("Evaluator/%d/Supplier/%d/Activity/%d/Files", evaluatorID, supplierID, activityID)
}

// UploadKey returns a fresh key for one upload attempt. The random segment
// keeps re-uploads of the same name from overwriting each other.
func UploadKey(evaluatorID, supplierID, activityID int64, originalName string) string {
	return fmt.Sprintf("%s/%v/%s", activityPrefix(evaluatorID, supplierID, activityID), uuid.New(), path.Base(originalName))
}

// ArchiveKey returns the key of the completion archive built at ts.
func ArchiveKey(evaluatorID, supplierID, activityID int64, ts time.Time) string {
	return fmt.Sprintf("%s/zipped/activity_%d_%s.zip",
		activityPrefix(evaluatorID, supplierID, activityID), activityID, ts.UTC().Format("20060102_150405"))
}
