package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/metrics"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/notify"
	"github.com/dmitrijs2005/lfras/internal/server/reminders"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/documents"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

// Reminder job names, used for locks, metrics and previews.
const (
	JobDocuments = "documents"
	JobFiles     = "files"
)

// earliest file step fires 28 days before expiry
const fileLookaheadDays = 28

var errNoDelivery = errors.New("no recipient accepted the reminder")

// ErrUnknownJob is returned for a job name other than JobDocuments or JobFiles.
var ErrUnknownJob = errors.New("unknown reminder job")

// PlannedReminder is a reminder that is due on a run date.
type PlannedReminder struct {
	Job        string     `json:"job"`
	TargetID   int64      `json:"target_id"`
	ActivityID int64      `json:"activity_id,omitempty"`
	Title      string     `json:"title"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Kind       string     `json:"kind"`
	Days       int        `json:"days"`
	Step       int        `json:"step,omitempty"`
	Subject    string     `json:"subject"`
	Level      string     `json:"level"`
	Recipients []string   `json:"recipients"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

// RunSummary counts what one job run did. Errors are items skipped because
// of an unexpected failure; they are retried on the next run.
type RunSummary struct {
	Job     string    `json:"job"`
	RunDate time.Time `json:"run_date"`
	Due     int       `json:"due"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
	Errors  int       `json:"errors"`
}

type ReminderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	dispatcher  notify.Dispatcher
	cfg         reminders.Config
	metrics     *metrics.Metrics
	logger      logging.Logger
	siteURL     string
	now         func() time.Time
}

func NewReminderService(db *sql.DB, rm repomanager.RepositoryManager, d notify.Dispatcher, cfg reminders.Config,
	m *metrics.Metrics, logger logging.Logger, siteURL string) *ReminderService {
	return &ReminderService{
		db:          db,
		repomanager: rm,
		dispatcher:  d,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With("module", "reminder_service"),
		siteURL:     strings.TrimRight(siteURL, "/"),
		now:         time.Now,
	}
}

// Config returns the cadence the service runs with.
func (s *ReminderService) Config() reminders.Config {
	return s.cfg
}

// RunDate is the local calendar date of t.
func (s *ReminderService) RunDate(t time.Time) time.Time {
	return timex.LocalDate(t, s.cfg.Location)
}

// Run dispatches the named job.
func (s *ReminderService) Run(ctx context.Context, job string, runDate time.Time) (RunSummary, error) {
	switch job {
	case JobDocuments:
		return s.RunDocumentReminders(ctx, runDate)
	case JobFiles:
		return s.RunFileReminders(ctx, runDate)
	default:
		return RunSummary{}, fmt.Errorf("%w %q", ErrUnknownJob, job)
	}
}

// RunDocumentReminders sends every document reminder due on runDate. A
// failing document is logged and skipped; the batch continues.
func (s *ReminderService) RunDocumentReminders(ctx context.Context, runDate time.Time) (RunSummary, error) {
	started := s.now()
	sum := RunSummary{Job: JobDocuments, RunDate: runDate}

	docs, err := s.dueDocuments(ctx, runDate, 0)
	if err != nil {
		s.metrics.ReminderRun(JobDocuments, "error", s.now().Sub(started))
		return sum, err
	}

	for _, doc := range docs {
		trig := reminders.WillTriggerOn(doc, runDate, s.cfg)
		if trig == nil {
			continue
		}
		sum.Due++

		sent, failed, err := s.sendDocumentReminder(ctx, doc, *trig, runDate)
		sum.Sent += sent
		sum.Failed += failed
		if err != nil {
			sum.Errors++
			s.logger.Error(ctx, "document reminder failed", "document_id", doc.ID, "kind", trig.Kind, "error", err)
		}
	}

	s.finishRun(ctx, sum, started)
	return sum, nil
}

// RunFileReminders advances the step cadence of every validated file with
// an expiry date.
func (s *ReminderService) RunFileReminders(ctx context.Context, runDate time.Time) (RunSummary, error) {
	started := s.now()
	sum := RunSummary{Job: JobFiles, RunDate: runDate}

	files, err := s.expiringFiles(ctx, runDate, 0)
	if err != nil {
		s.metrics.ReminderRun(JobFiles, "error", s.now().Sub(started))
		return sum, err
	}

	for _, f := range files {
		step, ok := reminders.NextFileStep(f.ExpiresAt, runDate, f.LastStepSent, s.cfg.Location)
		if !ok {
			continue
		}
		sum.Due++

		sent, failed, err := s.sendFileReminder(ctx, f, step, runDate)
		sum.Sent += sent
		sum.Failed += failed
		if err != nil {
			sum.Errors++
			s.logger.Error(ctx, "file reminder failed", "file_id", f.FileID, "step", step.Number, "error", err)
		}
	}

	s.finishRun(ctx, sum, started)
	return sum, nil
}

// Preview lists what the job would send on runDate without sending or
// recording anything. An empty job previews both. Evaluator users see
// their own tenant only; models.System sees every tenant.
func (s *ReminderService) Preview(ctx context.Context, actor models.Actor, runDate time.Time, job string) ([]PlannedReminder, error) {
	evaluatorID, err := previewScope(actor)
	if err != nil {
		return nil, err
	}
	if job != "" && job != JobDocuments && job != JobFiles {
		return nil, fmt.Errorf("%w %q", ErrUnknownJob, job)
	}

	var out []PlannedReminder

	if job == "" || job == JobDocuments {
		docs, err := s.dueDocuments(ctx, runDate, evaluatorID)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			trig := reminders.WillTriggerOn(doc, runDate, s.cfg)
			if trig == nil {
				continue
			}
			rcpts, err := s.recipients(ctx, doc.EvaluatorID, doc.SupplierID)
			if err != nil {
				return nil, err
			}
			out = append(out, PlannedReminder{
				Job:        JobDocuments,
				TargetID:   doc.ID,
				Title:      doc.Title,
				ExpiresAt:  *doc.ExpiresAt,
				Kind:       string(trig.Kind),
				Days:       trig.Days,
				Subject:    trig.Subject(doc.Title),
				Level:      documentLevel(trig.Kind),
				Recipients: rcpts,
				LastSentAt: doc.LastExpiryNotifiedAt,
			})
		}
	}

	if job == "" || job == JobFiles {
		files, err := s.expiringFiles(ctx, runDate, evaluatorID)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			step, ok := reminders.NextFileStep(f.ExpiresAt, runDate, f.LastStepSent, s.cfg.Location)
			if !ok {
				continue
			}
			supplierID := f.SupplierID
			rcpts, err := s.recipients(ctx, f.EvaluatorID, &supplierID)
			if err != nil {
				return nil, err
			}
			out = append(out, PlannedReminder{
				Job:        JobFiles,
				TargetID:   f.FileID,
				ActivityID: f.ActivityID,
				Title:      f.OriginalName,
				ExpiresAt:  f.ExpiresAt,
				Kind:       "STEP",
				Days:       -step.Offset,
				Step:       step.Number,
				Subject:    step.Subject(f.OriginalName),
				Level:      step.Level,
				Recipients: rcpts,
				LastSentAt: f.LastSentAt,
			})
		}
	}

	return out, nil
}

// previewScope is the tenant a preview is limited to; zero means all.
func previewScope(actor models.Actor) (int64, error) {
	if actor.Role == models.System.Role {
		return 0, nil
	}
	if actor.SupplierID != nil || actor.Role == models.RoleSupplierUser || actor.EvaluatorID == 0 {
		return 0, common.ErrorForbidden
	}
	return actor.EvaluatorID, nil
}

func (s *ReminderService) dueDocuments(ctx context.Context, runDate time.Time, evaluatorID int64) ([]models.Document, error) {
	maxOffset := 0
	for _, o := range s.cfg.Offsets {
		if o > maxOffset {
			maxOffset = o
		}
	}
	docs, err := s.repomanager.Documents(s.db).ListDue(ctx, documents.DueFilter{
		ExpiringBefore: s.localMidnight(runDate, maxOffset+1),
		EvaluatorID:    evaluatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}
	return docs, nil
}

func (s *ReminderService) expiringFiles(ctx context.Context, runDate time.Time, evaluatorID int64) ([]models.ExpiringFile, error) {
	files, err := s.repomanager.FileReminders(s.db).ListExpiring(ctx, s.localMidnight(runDate, fileLookaheadDays+1), evaluatorID)
	if err != nil {
		return nil, fmt.Errorf("error listing expiring files: %w", err)
	}
	return files, nil
}

func (s *ReminderService) sendDocumentReminder(ctx context.Context, doc models.Document, trig reminders.Trigger, runDate time.Time) (int, int, error) {
	rcpts, err := s.recipients(ctx, doc.EvaluatorID, doc.SupplierID)
	if err != nil {
		return 0, 0, err
	}

	msg := notify.Message{
		Subject:  trig.Subject(doc.Title),
		Body:     documentBody(doc, trig),
		Level:    documentLevel(trig.Kind),
		LinkURL:  s.link("/documents/%d", doc.ID),
		Category: "document_expiry",
		Meta:     map[string]any{"job": JobDocuments, "document_id": doc.ID, "kind": string(trig.Kind), "days": trig.Days},
	}
	sent, failed := s.deliver(ctx, JobDocuments, string(trig.Kind), rcpts, msg)
	if sent == 0 && len(rcpts) > 0 {
		return sent, failed, errNoDelivery
	}

	at := s.sentAt(runDate)
	if err := s.repomanager.Documents(s.db).MarkNotified(ctx, doc.ID, at); err != nil {
		return sent, failed, fmt.Errorf("error marking document notified: %w", err)
	}

	var supplierID int64
	if doc.SupplierID != nil {
		supplierID = *doc.SupplierID
	}
	err = appendAudit(ctx, s.repomanager, s.db, models.System, auditEntry{
		verb: "notify", action: "document_expiry_" + strings.ToLower(string(trig.Kind)), targetType: "document", targetID: doc.ID,
		evaluatorID: doc.EvaluatorID, supplierID: supplierID,
		meta: map[string]any{"days": trig.Days, "recipients": len(rcpts), "sent": sent},
	})
	return sent, failed, err
}

func (s *ReminderService) sendFileReminder(ctx context.Context, f models.ExpiringFile, step reminders.FileStep, runDate time.Time) (int, int, error) {
	supplierID := f.SupplierID
	rcpts, err := s.recipients(ctx, f.EvaluatorID, &supplierID)
	if err != nil {
		return 0, 0, err
	}

	msg := notify.Message{
		Subject:  step.Subject(f.OriginalName),
		Body:     fmt.Sprintf("%s\n\nFile: %s\nExpires: %s", step.Label, f.OriginalName, f.ExpiresAt.In(s.cfg.Location).Format("Jan 2, 2006")),
		Level:    step.Level,
		LinkURL:  s.link("/activities/%d", f.ActivityID),
		Category: "file_expiry",
		Meta:     map[string]any{"job": JobFiles, "file_id": f.FileID, "activity_id": f.ActivityID, "step": step.Number},
	}
	sent, failed := s.deliver(ctx, JobFiles, fmt.Sprintf("step_%d", step.Number), rcpts, msg)
	if sent == 0 && len(rcpts) > 0 {
		return sent, failed, errNoDelivery
	}

	if err := s.repomanager.FileReminders(s.db).Advance(ctx, f.FileID, step.Number, s.sentAt(runDate)); err != nil {
		return sent, failed, fmt.Errorf("error advancing file reminder: %w", err)
	}

	err = appendAudit(ctx, s.repomanager, s.db, models.System, auditEntry{
		verb: "notify", action: "file_expiry_step", targetType: "file", targetID: f.FileID,
		evaluatorID: f.EvaluatorID, supplierID: f.SupplierID,
		meta: map[string]any{"step": step.Number, "label": step.Label, "recipients": len(rcpts), "sent": sent},
	})
	return sent, failed, err
}

// deliver sends msg to each recipient and records every attempt. A failing
// recipient does not stop the others.
func (s *ReminderService) deliver(ctx context.Context, job, kind string, rcpts []string, msg notify.Message) (sent, failed int) {
	events := s.repomanager.EmailEvents(s.db)
	for _, to := range rcpts {
		m := msg
		m.To = to

		ev := &models.EmailEvent{Recipient: to, Subject: m.Subject, Category: m.Category, Status: models.EmailStatusSent, Meta: m.Meta}
		if err := s.dispatcher.Send(ctx, m); err != nil {
			failed++
			ev.Status, ev.Error = models.EmailStatusFailed, err.Error()
			s.logger.Warn(ctx, "reminder delivery failed", "to", to, "subject", m.Subject, "error", err)
			s.metrics.Reminder(job, kind, models.EmailStatusFailed)
		} else {
			sent++
			s.metrics.Reminder(job, kind, models.EmailStatusSent)
		}

		if err := events.Append(ctx, ev); err != nil {
			s.logger.Warn(ctx, "email event not recorded", "to", to, "error", err)
		}
	}
	return sent, failed
}

// recipients returns the distinct addresses of the tenant's evaluator users
// and, when the item belongs to a supplier, that supplier's users.
func (s *ReminderService) recipients(ctx context.Context, evaluatorID int64, supplierID *int64) ([]string, error) {
	users, err := s.repomanager.Users(s.db).ListRecipients(ctx, evaluatorID, supplierID)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		email := strings.TrimSpace(u.Email)
		key := strings.ToLower(email)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}

func (s *ReminderService) finishRun(ctx context.Context, sum RunSummary, started time.Time) {
	result := "ok"
	if sum.Errors > 0 {
		result = "partial"
	}
	s.metrics.ReminderRun(sum.Job, result, s.now().Sub(started))
	s.logger.Info(ctx, "reminder run finished", "job", sum.Job, "run_date", sum.RunDate.Format("2006-01-02"),
		"due", sum.Due, "sent", sum.Sent, "failed", sum.Failed, "errors", sum.Errors)
}

// sentAt is the notification timestamp recorded for runDate. A run for
// today uses the clock; a run for another date uses the send hour of that
// date so the same-day guard still recognises it.
func (s *ReminderService) sentAt(runDate time.Time) time.Time {
	now := s.now()
	if timex.LocalDate(now, s.cfg.Location).Equal(runDate) {
		return now
	}
	return time.Date(runDate.Year(), runDate.Month(), runDate.Day(), s.cfg.SendHourLocal, 0, 0, 0, s.cfg.Location)
}

func (s *ReminderService) localMidnight(runDate time.Time, addDays int) time.Time {
	return time.Date(runDate.Year(), runDate.Month(), runDate.Day()+addDays, 0, 0, 0, 0, s.cfg.Location)
}

func (s *ReminderService) link(format string, args ...any) string {
	if s.siteURL == "" {
		return ""
	}
	return s.siteURL + fmt.Sprintf(format, args...)
}

func documentLevel(k reminders.Kind) string {
	if k == reminders.KindPre {
		return notify.LevelWarning
	}
	return notify.LevelError
}

func documentBody(doc models.Document, trig reminders.Trigger) string {
	switch trig.Kind {
	case reminders.KindOn:
		return fmt.Sprintf("The document %q expires today.", doc.Title)
	case reminders.KindPost:
		return fmt.Sprintf("The document %q expired %d day(s) ago. Please upload a renewed copy.", doc.Title, -trig.Days)
	default:
		return fmt.Sprintf("The document %q expires in %d day(s).", doc.Title, trig.Days)
	}
}
