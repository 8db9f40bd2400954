package services

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/storage"
)

// Archiver bundles the validated files of a completed activity into a
// single zip in object storage.
type Archiver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	logger      logging.Logger
	now         func() time.Time
}

func NewArchiver(db *sql.DB, rm repomanager.RepositoryManager, store storage.ObjectStore, logger logging.Logger) *Archiver {
	return &Archiver{
		db:          db,
		repomanager: rm,
		store:       store,
		logger:      logger.With("module", "archiver"),
		now:         time.Now,
	}
}

// Build zips every VALID_OK file of the activity. Objects missing from
// storage are skipped. The archive record is replaced on each build.
func (a *Archiver) Build(ctx context.Context, activity *models.Activity, files []models.UploadedFile) (*models.ActivityArchive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	count := 0
	for _, f := range files {
		if f.Status != models.FileValidOK {
			continue
		}
		body, err := a.store.Get(ctx, f.StorageKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			a.logger.Warn(ctx, "archived file missing from storage", "activity_id", activity.ID, "file_id", f.ID, "key", f.StorageKey)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", f.StorageKey, err)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     archiveEntryName(f),
			Method:   zip.Deflate,
			Modified: f.UploadedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("error adding %s to archive: %w", f.OriginalName, err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("error adding %s to archive: %w", f.OriginalName, err)
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("error closing archive: %w", err)
	}

	sum := blake2b.Sum256(buf.Bytes())
	now := a.now()
	archive := &models.ActivityArchive{
		ActivityID: activity.ID,
		StorageKey: storage.ArchiveKey(activity.EvaluatorID, activity.SupplierID, activity.ID, now),
		Digest:     hex.EncodeToString(sum[:]),
		Size:       int64(buf.Len()),
		FileCount:  count,
		CreatedAt:  now,
	}

	if err := a.store.Put(ctx, archive.StorageKey, buf.Bytes(), "application/zip"); err != nil {
		return nil, fmt.Errorf("error uploading archive: %w", err)
	}
	if err := a.repomanager.Archives(a.db).Save(ctx, archive); err != nil {
		return nil, fmt.Errorf("error saving archive: %w", err)
	}

	a.logger.Info(ctx, "archive built", "activity_id", activity.ID, "files", count, "size", archive.Size)
	return archive, nil
}

// archiveEntryName keeps version 1 under its original name and suffixes
// later versions before the extension: report.pdf, report_v2.pdf.
func archiveEntryName(f models.UploadedFile) string {
	name := path.Base(f.OriginalName)
	if f.Version <= 1 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_v%d%s", strings.TrimSuffix(name, ext), f.Version, ext)
}
