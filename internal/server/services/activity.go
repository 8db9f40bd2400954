package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/metrics"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/storage"
	"github.com/dmitrijs2005/lfras/internal/server/validation"
)

const reasonUploadFailed = "upload did not complete"

// UploadRequest asks for a presigned URL for one upload attempt.
// When ReuploadOf is set, Name is ignored and the prior file's name is used.
type UploadRequest struct {
	ActivityID int64
	Name       string
	Size       int64
	ReuploadOf *int64
	ExpiresAt  *time.Time
}

type ActivityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	archiver    *Archiver
	metrics     *metrics.Metrics
	logger      logging.Logger
	urlTTL      time.Duration
	now         func() time.Time
}

func NewActivityService(db *sql.DB, rm repomanager.RepositoryManager, store storage.ObjectStore, archiver *Archiver,
	m *metrics.Metrics, logger logging.Logger, urlTTL time.Duration) *ActivityService {
	return &ActivityService{
		db:          db,
		repomanager: rm,
		store:       store,
		archiver:    archiver,
		metrics:     m,
		logger:      logger.With("module", "activity_service"),
		urlTTL:      urlTTL,
		now:         time.Now,
	}
}

// Start opens a new activity for the supplier and moves it straight to
// IN_PROGRESS.
func (s *ActivityService) Start(ctx context.Context, actor models.Actor, evaluatorID, supplierID int64) (*models.Activity, error) {
	if err := authorize(actor, evaluatorID, supplierID); err != nil {
		return nil, err
	}

	var activity *models.Activity
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Activities(tx)
		a, err := repo.Create(ctx, &models.Activity{
			EvaluatorID: evaluatorID,
			SupplierID:  supplierID,
			Status:      models.ActivityStarted,
			StartedBy:   actor.UserID,
		})
		if err != nil {
			return fmt.Errorf("error creating activity: %w", err)
		}
		if err := repo.Transition(ctx, a.ID, models.ActivityStarted, models.ActivityInProgress, nil, nil); err != nil {
			return fmt.Errorf("error starting activity: %w", err)
		}
		a.Status = models.ActivityInProgress
		activity = a

		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "create", action: "activity_started", targetType: "activity", targetID: a.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
		})
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// Get returns the activity if actor may see it.
func (s *ActivityService) Get(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error) {
	a, err := s.repomanager.Activities(s.db).GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, a.EvaluatorID, a.SupplierID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *ActivityService) ListFiles(ctx context.Context, actor models.Actor, activityID int64) ([]models.UploadedFile, error) {
	if _, err := s.Get(ctx, actor, activityID); err != nil {
		return nil, err
	}
	files, err := s.repomanager.Files(s.db).ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return files, nil
}

// RequestUpload reserves the next version for the file name, records the
// attempt as UPLOADING and returns where to PUT the bytes.
func (s *ActivityService) RequestUpload(ctx context.Context, actor models.Actor, req UploadRequest) (*models.FileUploadTask, error) {
	a, err := s.Get(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(a); err != nil {
		return nil, err
	}

	name := cleanFileName(req.Name)
	if req.ReuploadOf != nil {
		prior, err := s.repomanager.Files(s.db).GetByID(ctx, *req.ReuploadOf)
		if err != nil {
			return nil, fmt.Errorf("error getting prior file: %w", err)
		}
		if prior.ActivityID != a.ID {
			return nil, common.ErrorNotFound
		}
		name = prior.OriginalName
	}
	if name == "" {
		return nil, common.ErrInvalidFileName
	}

	var file *models.UploadedFile
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, err := s.lockActivity(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := requireOpen(locked); err != nil {
			return err
		}

		repo := s.repomanager.Files(tx)
		version, err := repo.NextVersion(ctx, a.ID, name)
		if err != nil {
			return fmt.Errorf("error reserving version: %w", err)
		}
		file, err = repo.Create(ctx, &models.UploadedFile{
			ActivityID:   a.ID,
			OriginalName: name,
			StorageKey:   storage.UploadKey(a.EvaluatorID, a.SupplierID, a.ID, name),
			Size:         req.Size,
			Status:       models.FileUploading,
			Version:      version,
			ReuploadOf:   req.ReuploadOf,
			UploadedBy:   actor.UserID,
			ExpiresAt:    req.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}
		if err := s.recount(ctx, tx, a.ID); err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "create", action: "file_upload_requested", targetType: "file", targetID: file.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
			meta: map[string]any{"activity_id": a.ID, "name": name, "version": version},
		})
	})
	if err != nil {
		return nil, err
	}

	url, err := s.store.PresignPut(ctx, file.StorageKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}

	return &models.FileUploadTask{FileID: file.ID, Version: file.Version, StorageKey: file.StorageKey, URL: url}, nil
}

// ConfirmUpload finishes an attempt. With ok the file is validated against
// the supplier's rules and lands in VALID_OK or VALID_FAILED; otherwise it
// becomes UPLOAD_FAILED.
func (s *ActivityService) ConfirmUpload(ctx context.Context, actor models.Actor, fileID int64, ok bool) (*models.UploadedFile, error) {
	file, a, err := s.fileWithActivity(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if err := requireOpen(a); err != nil {
		return nil, err
	}

	now := s.now()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, err := s.lockActivity(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := requireOpen(locked); err != nil {
			return err
		}

		repo := s.repomanager.Files(tx)

		if !ok {
			if err := repo.UpdateStatus(ctx, file.ID, file.Status, models.FileUploadFailed, reasonUploadFailed, nil); err != nil {
				return fmt.Errorf("error updating file: %w", err)
			}
			file.Status, file.FailureReason = models.FileUploadFailed, reasonUploadFailed
		} else {
			if err := repo.UpdateStatus(ctx, file.ID, models.FileUploading, models.FileValidating, "", nil); err != nil {
				return fmt.Errorf("error updating file: %w", err)
			}
			rules, err := s.repomanager.Rules(tx).ListBySupplier(ctx, a.EvaluatorID, a.SupplierID)
			if err != nil {
				return fmt.Errorf("error listing rules: %w", err)
			}
			res := validation.Match(rules, file.OriginalName)
			to := models.FileValidOK
			if !res.Accepted {
				to = models.FileValidFailed
			}
			if err := repo.UpdateStatus(ctx, file.ID, models.FileValidating, to, res.Reason, &now); err != nil {
				return fmt.Errorf("error updating file: %w", err)
			}
			file.Status, file.FailureReason, file.ValidatedAt = to, res.Reason, &now
		}

		if err := s.recount(ctx, tx, a.ID); err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "update", action: "file_" + strings.ToLower(string(file.Status)), targetType: "file", targetID: file.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
			meta: map[string]any{"activity_id": a.ID, "reason": file.FailureReason},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.UploadValidated(string(file.Status))
	return file, nil
}

// DeleteFile removes a failed or pending attempt. Validated files are
// immutable; they are superseded by re-uploading.
func (s *ActivityService) DeleteFile(ctx context.Context, actor models.Actor, fileID int64) error {
	file, a, err := s.fileWithActivity(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return common.ErrActivityEnded
	}
	if file.Status == models.FileValidOK {
		return common.ErrValidatedFileImmutable
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		locked, err := s.lockActivity(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return common.ErrActivityEnded
		}

		if err := s.repomanager.Files(tx).Delete(ctx, file.ID); err != nil {
			return fmt.Errorf("error deleting file: %w", err)
		}
		if err := s.recount(ctx, tx, a.ID); err != nil {
			return err
		}
		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "delete", action: "file_deleted", targetType: "file", targetID: file.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
			meta: map[string]any{"activity_id": a.ID, "name": file.OriginalName, "version": file.Version},
		})
	})
}

// Cancel ends the activity without an archive.
func (s *ActivityService) Cancel(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error) {
	var activity *models.Activity
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Activities(tx)
		a, err := repo.GetForUpdate(ctx, activityID)
		if err != nil {
			return err
		}
		if err := authorize(actor, a.EvaluatorID, a.SupplierID); err != nil {
			return err
		}
		if a.Status.Terminal() {
			return common.ErrActivityEnded
		}

		now := s.now()
		if err := repo.Transition(ctx, a.ID, a.Status, models.ActivityCancelled, actorID(actor), &now); err != nil {
			return fmt.Errorf("error cancelling activity: %w", err)
		}
		a.Status, a.EndedBy, a.EndedAt = models.ActivityCancelled, actorID(actor), &now
		activity = a

		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "update", action: "activity_cancelled", targetType: "activity", targetID: a.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
		})
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// Coverage reports which required rules still lack a validated file.
func (s *ActivityService) Coverage(ctx context.Context, actor models.Actor, activityID int64) (validation.CoverageReport, error) {
	a, err := s.Get(ctx, actor, activityID)
	if err != nil {
		return validation.CoverageReport{}, err
	}
	rules, err := s.repomanager.Rules(s.db).ListBySupplier(ctx, a.EvaluatorID, a.SupplierID)
	if err != nil {
		return validation.CoverageReport{}, fmt.Errorf("error listing rules: %w", err)
	}
	files, err := s.repomanager.Files(s.db).ListByActivity(ctx, a.ID)
	if err != nil {
		return validation.CoverageReport{}, fmt.Errorf("error listing files: %w", err)
	}
	return validation.Coverage(rules, files), nil
}

// Complete applies the completion gate under a row lock and, once the
// transaction commits, builds the archive. An archive failure is logged
// and left for EnsureArchive to retry.
func (s *ActivityService) Complete(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error) {
	var (
		activity *models.Activity
		files    []models.UploadedFile
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Activities(tx)
		a, err := repo.GetForUpdate(ctx, activityID)
		if err != nil {
			return err
		}
		if err := authorize(actor, a.EvaluatorID, a.SupplierID); err != nil {
			return err
		}
		if a.Status.Terminal() {
			return common.ErrActivityEnded
		}

		files, err = s.repomanager.Files(tx).ListByActivity(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("error listing files: %w", err)
		}
		rules, err := s.repomanager.Rules(tx).ListBySupplier(ctx, a.EvaluatorID, a.SupplierID)
		if err != nil {
			return fmt.Errorf("error listing rules: %w", err)
		}

		decision := validation.CanComplete(a.Status, files, validation.Coverage(rules, files))
		if !decision.Allowed {
			return decision.Err
		}

		now := s.now()
		if err := repo.Transition(ctx, a.ID, models.ActivityInProgress, models.ActivityCompleted, actorID(actor), &now); err != nil {
			return fmt.Errorf("error completing activity: %w", err)
		}
		a.Status, a.EndedBy, a.EndedAt = models.ActivityCompleted, actorID(actor), &now
		activity = a

		return appendAudit(ctx, s.repomanager, tx, actor, auditEntry{
			verb: "update", action: "activity_completed", targetType: "activity", targetID: a.ID,
			evaluatorID: a.EvaluatorID, supplierID: a.SupplierID,
			meta: map[string]any{"files": len(files)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ActivityCompleted()

	if _, err := s.archiver.Build(ctx, activity, files); err != nil {
		s.logger.Error(ctx, "archive build failed", "activity_id", activity.ID, "error", err)
	}
	return activity, nil
}

// EnsureArchive returns the stored archive of a completed activity,
// building it first if the build after completion did not succeed.
func (s *ActivityService) EnsureArchive(ctx context.Context, actor models.Actor, activityID int64) (*models.ActivityArchive, error) {
	a, err := s.Get(ctx, actor, activityID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.ActivityCompleted {
		return nil, common.ErrArchiveUnavailable
	}

	archive, err := s.repomanager.Archives(s.db).Get(ctx, a.ID)
	if err == nil {
		return archive, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error getting archive: %w", err)
	}

	files, err := s.repomanager.Files(s.db).ListByActivity(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return s.archiver.Build(ctx, a, files)
}

// ArchiveURL returns a presigned download link for the activity archive.
func (s *ActivityService) ArchiveURL(ctx context.Context, actor models.Actor, activityID int64) (string, error) {
	archive, err := s.EnsureArchive(ctx, actor, activityID)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignGet(ctx, archive.StorageKey, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}

func (s *ActivityService) fileWithActivity(ctx context.Context, actor models.Actor, fileID int64) (*models.UploadedFile, *models.Activity, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.Get(ctx, actor, file.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	return file, a, nil
}

// lockActivity re-reads the activity with a row lock. File changes check
// the status returned here, so they serialise with Complete and Cancel.
func (s *ActivityService) lockActivity(ctx context.Context, tx dbx.DBTX, activityID int64) (*models.Activity, error) {
	a, err := s.repomanager.Activities(tx).GetForUpdate(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("error locking activity: %w", err)
	}
	return a, nil
}

func (s *ActivityService) recount(ctx context.Context, tx dbx.DBTX, activityID int64) error {
	c, err := s.repomanager.Files(tx).Counters(ctx, activityID)
	if err != nil {
		return fmt.Errorf("error counting files: %w", err)
	}
	if err := s.repomanager.Activities(tx).SetCounters(ctx, activityID, c); err != nil {
		return fmt.Errorf("error updating counters: %w", err)
	}
	return nil
}

func requireOpen(a *models.Activity) error {
	if a.Status.Terminal() {
		return common.ErrActivityEnded
	}
	if a.Status != models.ActivityInProgress {
		return common.ErrActivityNotInProgress
	}
	return nil
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
