package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/dbx"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/notify"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/activities"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/archives"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/audit"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/documents"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/emailevents"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/filereminders"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/files"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/rules"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/users"
)

// -------- test fakes --------

type fakeActivities struct {
	activities.Repository
	rows   map[int64]*models.Activity
	nextID int64
	getErr error
	// onLock runs against the stored row before GetForUpdate reads it.
	onLock func(a *models.Activity)
}

func (f *fakeActivities) Create(_ context.Context, a *models.Activity) (*models.Activity, error) {
	f.nextID++
	a.ID = f.nextID
	a.StartedAt = time.Now()
	cp := *a
	f.rows[a.ID] = &cp
	return a, nil
}

func (f *fakeActivities) GetByID(_ context.Context, id int64) (*models.Activity, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeActivities) GetForUpdate(ctx context.Context, id int64) (*models.Activity, error) {
	if a, ok := f.rows[id]; ok && f.onLock != nil {
		f.onLock(a)
	}
	return f.GetByID(ctx, id)
}

func (f *fakeActivities) Transition(_ context.Context, id int64, from, to models.ActivityStatus, endedBy *int64, endedAt *time.Time) error {
	a, ok := f.rows[id]
	if !ok || a.Status != from {
		return common.ErrInvalidTransition
	}
	a.Status, a.EndedBy, a.EndedAt = to, endedBy, endedAt
	return nil
}

func (f *fakeActivities) SetCounters(_ context.Context, id int64, c models.ActivityCounters) error {
	a := f.rows[id]
	a.TotalFiles, a.FailedFiles, a.ReuploadedFiles = c.TotalFiles, c.FailedFiles, c.ReuploadedFiles
	return nil
}

type fakeFiles struct {
	files.Repository
	rows     map[int64]*models.UploadedFile
	versions map[string]int
	nextID   int64
}

func (f *fakeFiles) NextVersion(_ context.Context, activityID int64, name string) (int, error) {
	key := fmt.Sprintf("%d/%s", activityID, name)
	f.versions[key]++
	return f.versions[key], nil
}

func (f *fakeFiles) Create(_ context.Context, file *models.UploadedFile) (*models.UploadedFile, error) {
	f.nextID++
	file.ID = f.nextID
	file.UploadedAt = time.Now()
	cp := *file
	f.rows[file.ID] = &cp
	return file, nil
}

func (f *fakeFiles) GetByID(_ context.Context, id int64) (*models.UploadedFile, error) {
	file, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFiles) ListByActivity(_ context.Context, activityID int64) ([]models.UploadedFile, error) {
	var out []models.UploadedFile
	for _, file := range f.rows {
		if file.ActivityID == activityID {
			out = append(out, *file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeFiles) UpdateStatus(_ context.Context, id int64, from, to models.FileStatus, reason string, validatedAt *time.Time) error {
	file, ok := f.rows[id]
	if !ok || file.Status != from || !models.CanTransition(from, to) {
		return common.ErrInvalidTransition
	}
	file.Status, file.FailureReason, file.ValidatedAt = to, reason, validatedAt
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, id int64) error {
	if _, ok := f.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeFiles) Counters(_ context.Context, activityID int64) (models.ActivityCounters, error) {
	var c models.ActivityCounters
	for _, file := range f.rows {
		if file.ActivityID != activityID {
			continue
		}
		c.TotalFiles++
		if file.Status.Failed() {
			c.FailedFiles++
		}
		if file.Version > 1 {
			c.ReuploadedFiles++
		}
	}
	return c, nil
}

type fakeRules struct {
	rules.Repository
	rows      []models.ValidationRule
	nextID    int64
	createErr error
}

func (f *fakeRules) Create(_ context.Context, r *models.ValidationRule) (*models.ValidationRule, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, e := range f.rows {
		if e.SupplierID == r.SupplierID && strings.EqualFold(e.ExpectedName, r.ExpectedName) {
			return nil, common.ErrRuleExists
		}
	}
	f.nextID++
	r.ID = f.nextID
	f.rows = append(f.rows, *r)
	return r, nil
}

func (f *fakeRules) Update(_ context.Context, r *models.ValidationRule) error {
	for i := range f.rows {
		if f.rows[i].ID == r.ID && f.rows[i].SupplierID == r.SupplierID {
			f.rows[i] = *r
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeRules) Delete(_ context.Context, supplierID, id int64) error {
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].SupplierID == supplierID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeRules) DeleteBySupplier(_ context.Context, evaluatorID, supplierID int64) (int64, error) {
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if r.EvaluatorID == evaluatorID && r.SupplierID == supplierID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeRules) GetByID(_ context.Context, id int64) (*models.ValidationRule, error) {
	for _, r := range f.rows {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRules) ListBySupplier(_ context.Context, evaluatorID, supplierID int64) ([]models.ValidationRule, error) {
	var out []models.ValidationRule
	for _, r := range f.rows {
		if r.EvaluatorID == evaluatorID && r.SupplierID == supplierID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) OwnedByOther(_ context.Context, evaluatorID, supplierID int64) (bool, error) {
	for _, r := range f.rows {
		if r.SupplierID == supplierID && r.EvaluatorID != evaluatorID {
			return true, nil
		}
	}
	return false, nil
}

type fakeDocuments struct {
	documents.Repository
	rows    []models.Document
	filter  documents.DueFilter
	listErr error
	marked  map[int64]time.Time
}

func (f *fakeDocuments) ListDue(_ context.Context, flt documents.DueFilter) ([]models.Document, error) {
	f.filter = flt
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Document
	for _, d := range f.rows {
		if flt.EvaluatorID == 0 || d.EvaluatorID == flt.EvaluatorID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) MarkNotified(_ context.Context, id int64, at time.Time) error {
	f.marked[id] = at
	return nil
}

type fakeUsers struct {
	users.Repository
	rows []models.User
	err  error
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.rows {
		if u.ID == id {
			cp := u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) ListRecipients(_ context.Context, evaluatorID int64, supplierID *int64) ([]models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.User
	for _, u := range f.rows {
		switch {
		case u.SupplierID == nil && u.EvaluatorID != nil && *u.EvaluatorID == evaluatorID:
			out = append(out, u)
		case u.SupplierID != nil && supplierID != nil && *u.SupplierID == *supplierID:
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeAudit struct {
	audit.Repository
	events []models.AuditEvent
}

func (f *fakeAudit) Append(_ context.Context, e *models.AuditEvent) error {
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeAudit) actions() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}

type fakeEmailEvents struct {
	emailevents.Repository
	events []models.EmailEvent
}

func (f *fakeEmailEvents) Append(_ context.Context, e *models.EmailEvent) error {
	f.events = append(f.events, *e)
	return nil
}

type fakeArchives struct {
	archives.Repository
	rows map[int64]*models.ActivityArchive
}

func (f *fakeArchives) Get(_ context.Context, activityID int64) (*models.ActivityArchive, error) {
	a, ok := f.rows[activityID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeArchives) Save(_ context.Context, a *models.ActivityArchive) error {
	f.rows[a.ActivityID] = a
	return nil
}

type fakeFileReminders struct {
	filereminders.Repository
	rows        []models.ExpiringFile
	before      time.Time
	evaluatorID int64
	advanced    map[int64]int
}

func (f *fakeFileReminders) ListExpiring(_ context.Context, before time.Time, evaluatorID int64) ([]models.ExpiringFile, error) {
	f.before, f.evaluatorID = before, evaluatorID
	var out []models.ExpiringFile
	for _, r := range f.rows {
		if evaluatorID == 0 || r.EvaluatorID == evaluatorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeFileReminders) Advance(_ context.Context, fileID int64, step int, _ time.Time) error {
	if step <= f.advanced[fileID] {
		return common.ErrInvalidTransition
	}
	f.advanced[fileID] = step
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	activities    *fakeActivities
	files         *fakeFiles
	rules         *fakeRules
	documents     *fakeDocuments
	users         *fakeUsers
	audit         *fakeAudit
	emailEvents   *fakeEmailEvents
	archives      *fakeArchives
	fileReminders *fakeFileReminders
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		activities:    &fakeActivities{rows: map[int64]*models.Activity{}},
		files:         &fakeFiles{rows: map[int64]*models.UploadedFile{}, versions: map[string]int{}},
		rules:         &fakeRules{},
		documents:     &fakeDocuments{marked: map[int64]time.Time{}},
		users:         &fakeUsers{},
		audit:         &fakeAudit{},
		emailEvents:   &fakeEmailEvents{},
		archives:      &fakeArchives{rows: map[int64]*models.ActivityArchive{}},
		fileReminders: &fakeFileReminders{advanced: map[int64]int{}},
	}
}

func (m *fakeRepoManager) Activities(dbx.DBTX) activities.Repository       { return m.activities }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository                 { return m.files }
func (m *fakeRepoManager) Rules(dbx.DBTX) rules.Repository                 { return m.rules }
func (m *fakeRepoManager) Documents(dbx.DBTX) documents.Repository         { return m.documents }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRepoManager) Audit(dbx.DBTX) audit.Repository                 { return m.audit }
func (m *fakeRepoManager) EmailEvents(dbx.DBTX) emailevents.Repository     { return m.emailEvents }
func (m *fakeRepoManager) Archives(dbx.DBTX) archives.Repository           { return m.archives }
func (m *fakeRepoManager) FileReminders(dbx.DBTX) filereminders.Repository { return m.fileReminders }

type fakeDispatcher struct {
	mu   sync.Mutex
	fail map[string]error
	sent []notify.Message
}

func (d *fakeDispatcher) Send(_ context.Context, m notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[m.To]; err != nil {
		return err
	}
	d.sent = append(d.sent, m)
	return nil
}

// -------- helpers --------

// newSQLMockDB only tracks transaction boundaries; the fakes above do the
// real bookkeeping.
func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

func nopLogger() logging.Logger { return logging.Nop() }

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func ptr[T any](v T) *T { return &v }
