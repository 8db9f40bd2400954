package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/storage"
)

var (
	evaluatorAdmin = models.Actor{UserID: 7, Role: models.RoleEvaluatorAdmin, EvaluatorID: 1}
	fixedNow       = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
)

type activityFixture struct {
	svc   *ActivityService
	rm    *fakeRepoManager
	store *storage.MemoryStore
	mock  sqlmock.Sqlmock
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := newFakeRepoManager()
	store := storage.NewMemoryStore()

	archiver := NewArchiver(db, rm, store, nopLogger())
	archiver.now = func() time.Time { return fixedNow }
	svc := NewActivityService(db, rm, store, archiver, nil, nopLogger(), 15*time.Minute)
	svc.now = func() time.Time { return fixedNow }

	rm.activities.rows[1] = &models.Activity{ID: 1, EvaluatorID: 1, SupplierID: 2, Status: models.ActivityInProgress, StartedBy: 7}
	rm.activities.nextID = 1

	return &activityFixture{svc: svc, rm: rm, store: store, mock: mock}
}

func (f *activityFixture) addRule(name string, required bool, exts ...string) {
	f.rm.rules.nextID++
	f.rm.rules.rows = append(f.rm.rules.rows, models.ValidationRule{
		ID: f.rm.rules.nextID, EvaluatorID: 1, SupplierID: 2,
		ExpectedName: name, AllowedExtensions: exts, IsRequired: required, IsActive: true,
	})
}

// upload requests, stores and confirms one file.
func (f *activityFixture) upload(t *testing.T, name string, reuploadOf *int64) *models.UploadedFile {
	t.Helper()
	ctx := context.Background()

	expectCommit(f.mock)
	task, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: name, ReuploadOf: reuploadOf})
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, task.StorageKey, []byte("content of "+name), "application/octet-stream"))

	expectCommit(f.mock)
	file, err := f.svc.ConfirmUpload(ctx, evaluatorAdmin, task.FileID, true)
	require.NoError(t, err)
	return file
}

func TestStart(t *testing.T) {
	f := newActivityFixture(t)

	expectCommit(f.mock)
	a, err := f.svc.Start(context.Background(), evaluatorAdmin, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, models.ActivityInProgress, a.Status)
	assert.Equal(t, int64(3), a.SupplierID)
	assert.Equal(t, models.ActivityInProgress, f.rm.activities.rows[a.ID].Status)
	assert.Equal(t, []string{"activity_started"}, f.rm.audit.actions())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStart_OtherTenantForbidden(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.svc.Start(context.Background(), evaluatorAdmin, 99, 3)
	assert.ErrorIs(t, err, common.ErrorForbidden)
}

func TestRequestUpload(t *testing.T) {
	f := newActivityFixture(t)

	expectCommit(f.mock)
	task, err := f.svc.RequestUpload(context.Background(), evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "../../W9 form.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 1, task.Version)
	assert.Regexp(t, `^Evaluator/1/Supplier/2/Activity/1/Files/[0-9a-f-]+/W9 form\.pdf$`, task.StorageKey)
	assert.Equal(t, "memory://put/"+task.StorageKey, task.URL)

	file := f.rm.files.rows[task.FileID]
	assert.Equal(t, models.FileUploading, file.Status)
	assert.Equal(t, "W9 form.pdf", file.OriginalName)
	assert.Equal(t, int64(7), file.UploadedBy)
	assert.Equal(t, 1, f.rm.activities.rows[1].TotalFiles)
}

func TestRequestUpload_Rejections(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "  "})
	assert.ErrorIs(t, err, common.ErrInvalidFileName)

	_, err = f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 42, Name: "a.pdf"})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	supplierUser := models.Actor{UserID: 9, Role: models.RoleSupplierUser, EvaluatorID: 1, SupplierID: ptr(int64(5))}
	_, err = f.svc.RequestUpload(ctx, supplierUser, UploadRequest{ActivityID: 1, Name: "a.pdf"})
	assert.ErrorIs(t, err, common.ErrorForbidden)

	f.rm.activities.rows[1].Status = models.ActivityStarted
	_, err = f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "a.pdf"})
	assert.ErrorIs(t, err, common.ErrActivityNotInProgress)

	f.rm.activities.rows[1].Status = models.ActivityCancelled
	_, err = f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "a.pdf"})
	assert.ErrorIs(t, err, common.ErrActivityEnded)
}

func TestConfirmUpload_ValidatesAgainstRules(t *testing.T) {
	f := newActivityFixture(t)
	f.addRule("w9", true, "pdf")

	ok := f.upload(t, "acme_w9.pdf", nil)
	assert.Equal(t, models.FileValidOK, ok.Status)
	assert.Empty(t, ok.FailureReason)
	require.NotNil(t, ok.ValidatedAt)
	assert.Equal(t, fixedNow, *ok.ValidatedAt)

	bad := f.upload(t, "acme_w9.docx", nil)
	assert.Equal(t, models.FileValidFailed, bad.Status)
	assert.Contains(t, bad.FailureReason, "not allowed")

	stray := f.upload(t, "invoice.pdf", nil)
	assert.Equal(t, models.FileValidFailed, stray.Status)
	assert.Equal(t, "no matching expected file for this upload.", stray.FailureReason)

	a := f.rm.activities.rows[1]
	assert.Equal(t, 3, a.TotalFiles)
	assert.Equal(t, 2, a.FailedFiles)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmUpload_FailedTransfer(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	expectCommit(f.mock)
	task, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "a.pdf"})
	require.NoError(t, err)

	expectCommit(f.mock)
	file, err := f.svc.ConfirmUpload(ctx, evaluatorAdmin, task.FileID, false)
	require.NoError(t, err)
	assert.Equal(t, models.FileUploadFailed, file.Status)
	assert.Nil(t, file.ValidatedAt)

	// a final file cannot be confirmed again
	expectRollback(f.mock)
	_, err = f.svc.ConfirmUpload(ctx, evaluatorAdmin, task.FileID, true)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReupload_KeepsNameAndIncrementsVersion(t *testing.T) {
	f := newActivityFixture(t)
	f.addRule("w9", true, "pdf")
	ctx := context.Background()

	expectCommit(f.mock)
	first, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "acme_w9.pdf"})
	require.NoError(t, err)
	expectCommit(f.mock)
	_, err = f.svc.ConfirmUpload(ctx, evaluatorAdmin, first.FileID, false)
	require.NoError(t, err)

	expectCommit(f.mock)
	require.NoError(t, f.svc.DeleteFile(ctx, evaluatorAdmin, first.FileID))

	second, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "ignored.txt", ReuploadOf: ptr(int64(99))})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Nil(t, second)

	expectCommit(f.mock)
	third, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "acme_w9.pdf"})
	require.NoError(t, err)
	// the deleted attempt keeps its number
	assert.Equal(t, 2, third.Version)

	expectCommit(f.mock)
	fourth, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "other.pdf", ReuploadOf: &third.FileID})
	require.NoError(t, err)
	assert.Equal(t, 3, fourth.Version)
	assert.Equal(t, "acme_w9.pdf", f.rm.files.rows[fourth.FileID].OriginalName)
	assert.Equal(t, 2, f.rm.activities.rows[1].ReuploadedFiles)
}

func TestDeleteFile_Rules(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	valid := f.upload(t, "anything.pdf", nil)
	err := f.svc.DeleteFile(ctx, evaluatorAdmin, valid.ID)
	assert.ErrorIs(t, err, common.ErrValidatedFileImmutable)

	f.rm.activities.rows[1].Status = models.ActivityCompleted
	err = f.svc.DeleteFile(ctx, evaluatorAdmin, valid.ID)
	assert.ErrorIs(t, err, common.ErrActivityEnded)
	assert.Len(t, f.rm.files.rows, 1)
}

// A required W9 rule; a wrong-extension upload fails, blocks completion
// until removed, and a correct upload then allows completion.
func TestComplete_Scenario(t *testing.T) {
	f := newActivityFixture(t)
	f.addRule("w9", true, "pdf")
	ctx := context.Background()

	expectRollback(f.mock)
	_, err := f.svc.Complete(ctx, evaluatorAdmin, 1)
	var missing *common.MissingRequiredError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"w9"}, missing.Names)

	bad := f.upload(t, "acme_w9.docx", nil)

	expectRollback(f.mock)
	_, err = f.svc.Complete(ctx, evaluatorAdmin, 1)
	assert.ErrorIs(t, err, common.ErrFailedFilesPresent)
	assert.Equal(t, models.ActivityInProgress, f.rm.activities.rows[1].Status)

	expectCommit(f.mock)
	require.NoError(t, f.svc.DeleteFile(ctx, evaluatorAdmin, bad.ID))

	f.upload(t, "acme_w9.pdf", nil)

	expectCommit(f.mock)
	a, err := f.svc.Complete(ctx, evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityCompleted, a.Status)
	require.NotNil(t, a.EndedBy)
	assert.Equal(t, int64(7), *a.EndedBy)
	assert.Equal(t, fixedNow, *a.EndedAt)

	archive := f.rm.archives.rows[1]
	require.NotNil(t, archive)
	assert.Equal(t, 1, archive.FileCount)
	assert.Equal(t, "Evaluator/1/Supplier/2/Activity/1/Files/zipped/activity_1_20250304_150000.zip", archive.StorageKey)
	assert.Len(t, archive.Digest, 64)

	// ending twice changes nothing
	expectRollback(f.mock)
	_, err = f.svc.Complete(ctx, evaluatorAdmin, 1)
	assert.ErrorIs(t, err, common.ErrActivityEnded)

	assert.Contains(t, f.rm.audit.actions(), "activity_completed")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestComplete_NoRules(t *testing.T) {
	f := newActivityFixture(t)

	expectCommit(f.mock)
	a, err := f.svc.Complete(context.Background(), evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityCompleted, a.Status)
	assert.Equal(t, 0, f.rm.archives.rows[1].FileCount)
}

type failingStore struct {
	storage.ObjectStore
}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBoom{} }

func TestComplete_ArchiveFailureDoesNotUndoCompletion(t *testing.T) {
	f := newActivityFixture(t)
	f.upload(t, "a.pdf", nil)
	f.svc.archiver.store = failingStore{}

	expectCommit(f.mock)
	a, err := f.svc.Complete(context.Background(), evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityCompleted, a.Status)
	assert.Empty(t, f.rm.archives.rows)

	// rebuilt on demand
	f.svc.archiver.store = f.store
	url, err := f.svc.ArchiveURL(context.Background(), evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://get/Evaluator/1/Supplier/2/Activity/1/Files/zipped/")
	assert.Equal(t, 1, f.rm.archives.rows[1].FileCount)
}

func TestCancel(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	expectCommit(f.mock)
	a, err := f.svc.Cancel(ctx, evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityCancelled, a.Status)

	expectRollback(f.mock)
	_, err = f.svc.Cancel(ctx, evaluatorAdmin, 1)
	assert.ErrorIs(t, err, common.ErrActivityEnded)

	_, err = f.svc.EnsureArchive(ctx, evaluatorAdmin, 1)
	assert.ErrorIs(t, err, common.ErrArchiveUnavailable)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCoverage(t *testing.T) {
	f := newActivityFixture(t)
	f.addRule("w9", true, "pdf")
	f.addRule("coi", false)
	f.upload(t, "acme_W9.pdf", nil)

	report, err := f.svc.Coverage(context.Background(), evaluatorAdmin, 1)
	require.NoError(t, err)
	assert.True(t, report.AnyActiveRules)
	assert.Empty(t, report.RequiredMissing)
	assert.Equal(t, map[string]int{"w9": 1, "coi": 0}, report.MatchedCounts)
}

func TestArchiver_Build(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "k1", []byte("one"), ""))
	require.NoError(t, f.store.Put(ctx, "k2", []byte("two"), ""))

	files := []models.UploadedFile{
		{ID: 1, OriginalName: "report.pdf", StorageKey: "k1", Status: models.FileValidOK, Version: 1},
		{ID: 2, OriginalName: "report.pdf", StorageKey: "k2", Status: models.FileValidOK, Version: 2},
		{ID: 3, OriginalName: "bad.pdf", StorageKey: "k1", Status: models.FileValidFailed, Version: 1},
		{ID: 4, OriginalName: "gone.pdf", StorageKey: "missing", Status: models.FileValidOK, Version: 1},
	}
	activity := &models.Activity{ID: 1, EvaluatorID: 1, SupplierID: 2}

	archive, err := f.svc.archiver.Build(ctx, activity, files)
	require.NoError(t, err)
	assert.Equal(t, 2, archive.FileCount)

	body, err := f.store.Get(ctx, archive.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), archive.Size)

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	got := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		got[zf.Name] = string(b)
	}
	assert.Equal(t, map[string]string{"report.pdf": "one", "report_v2.pdf": "two"}, got)
}

func TestArchiver_StoreError(t *testing.T) {
	f := newActivityFixture(t)
	f.svc.archiver.store = failingStore{}

	_, err := f.svc.archiver.Build(context.Background(), &models.Activity{ID: 1},
		[]models.UploadedFile{{ID: 1, OriginalName: "a.pdf", StorageKey: "k", Status: models.FileValidOK}})
	assert.True(t, errors.Is(err, errBoom{}))
}

func TestArchiveEntryName(t *testing.T) {
	cases := map[string]models.UploadedFile{
		"w9.pdf":      {OriginalName: "w9.pdf", Version: 1},
		"w9_v3.pdf":   {OriginalName: "w9.pdf", Version: 3},
		"README_v2":   {OriginalName: "README", Version: 2},
		"a.tar_v2.gz": {OriginalName: "a.tar.gz", Version: 2},
		"evil_v2.pdf": {OriginalName: "../../evil.pdf", Version: 2},
	}
	for want, f := range cases {
		assert.Equal(t, want, archiveEntryName(f))
	}
}

func TestFileChanges_SeeCompletionCommittedMeanwhile(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	expectCommit(f.mock)
	pending, err := f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "acme_w9.pdf"})
	require.NoError(t, err)

	// the activity is still IN_PROGRESS when first read; another session
	// completes it before the row lock is taken
	f.rm.activities.onLock = func(a *models.Activity) { a.Status = models.ActivityCompleted }

	expectRollback(f.mock)
	_, err = f.svc.ConfirmUpload(ctx, evaluatorAdmin, pending.FileID, true)
	assert.ErrorIs(t, err, common.ErrActivityEnded)
	assert.Equal(t, models.FileUploading, f.rm.files.rows[pending.FileID].Status)

	f.rm.activities.rows[1].Status = models.ActivityInProgress
	expectRollback(f.mock)
	_, err = f.svc.RequestUpload(ctx, evaluatorAdmin, UploadRequest{ActivityID: 1, Name: "late.pdf"})
	assert.ErrorIs(t, err, common.ErrActivityEnded)
	assert.Len(t, f.rm.files.rows, 1)

	f.rm.activities.rows[1].Status = models.ActivityInProgress
	expectRollback(f.mock)
	assert.ErrorIs(t, f.svc.DeleteFile(ctx, evaluatorAdmin, pending.FileID), common.ErrActivityEnded)
	assert.Contains(t, f.rm.files.rows, pending.FileID)

	assert.Equal(t, []string{"file_upload_requested"}, f.rm.audit.actions())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
