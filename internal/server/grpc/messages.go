package grpc

import (
	"time"

	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/server/validation"
)

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type StartActivityRequest struct {
	EvaluatorID int64 `json:"evaluator_id"`
	SupplierID  int64 `json:"supplier_id"`
}

type ActivityRequest struct {
	ActivityID int64 `json:"activity_id"`
}

type FileRequest struct {
	FileID int64 `json:"file_id"`
}

type Activity struct {
	ID              int64      `json:"id"`
	EvaluatorID     int64      `json:"evaluator_id"`
	SupplierID      int64      `json:"supplier_id"`
	Status          string     `json:"status"`
	StartedBy       int64      `json:"started_by"`
	StartedAt       time.Time  `json:"started_at"`
	EndedBy         *int64     `json:"ended_by,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	TotalFiles      int        `json:"total_files"`
	FailedFiles     int        `json:"failed_files"`
	ReuploadedFiles int        `json:"reuploaded_files"`
}

type File struct {
	ID            int64      `json:"id"`
	ActivityID    int64      `json:"activity_id"`
	OriginalName  string     `json:"original_name"`
	Size          int64      `json:"size"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Version       int        `json:"version"`
	ReuploadOf    *int64     `json:"reupload_of,omitempty"`
	UploadedBy    int64      `json:"uploaded_by"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	ValidatedAt   *time.Time `json:"validated_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type ListFilesResponse struct {
	Files []File `json:"files"`
}

type RequestUploadRequest struct {
	ActivityID int64      `json:"activity_id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	ReuploadOf *int64     `json:"reupload_of,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type UploadTask struct {
	FileID     int64  `json:"file_id"`
	Version    int    `json:"version"`
	StorageKey string `json:"storage_key"`
	URL        string `json:"url"`
}

type ConfirmUploadRequest struct {
	FileID int64 `json:"file_id"`
	OK     bool  `json:"ok"`
}

type CoverageResponse = validation.CoverageReport

type URLResponse struct {
	URL string `json:"url"`
}

type Rule struct {
	ID                int64     `json:"id"`
	EvaluatorID       int64     `json:"evaluator_id"`
	SupplierID        int64     `json:"supplier_id"`
	ExpectedName      string    `json:"expected_name"`
	AllowedExtensions []string  `json:"allowed_extensions"`
	RequiredKeywords  []string  `json:"required_keywords"`
	IsRequired        bool      `json:"is_required"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

type RuleRequest struct {
	RuleID int64 `json:"rule_id"`
}

type SupplierRequest struct {
	SupplierID int64 `json:"supplier_id"`
}

type ListRulesResponse struct {
	Rules []Rule `json:"rules"`
}

type ImportRulesRequest struct {
	SupplierID int64  `json:"supplier_id"`
	CSV        string `json:"csv"`
}

type PreviewRequest struct {
	// Date is YYYY-MM-DD in the reminder time zone; empty means today.
	Date string `json:"date"`
	Job  string `json:"job"`
}

type PreviewResponse struct {
	RunDate   string                     `json:"run_date"`
	Reminders []services.PlannedReminder `json:"reminders"`
}

func toActivity(a *models.Activity) *Activity {
	return &Activity{
		ID:              a.ID,
		EvaluatorID:     a.EvaluatorID,
		SupplierID:      a.SupplierID,
		Status:          string(a.Status),
		StartedBy:       a.StartedBy,
		StartedAt:       a.StartedAt,
		EndedBy:         a.EndedBy,
		EndedAt:         a.EndedAt,
		TotalFiles:      a.TotalFiles,
		FailedFiles:     a.FailedFiles,
		ReuploadedFiles: a.ReuploadedFiles,
	}
}

func toFile(f *models.UploadedFile) File {
	return File{
		ID:            f.ID,
		ActivityID:    f.ActivityID,
		OriginalName:  f.OriginalName,
		Size:          f.Size,
		Status:        string(f.Status),
		FailureReason: f.FailureReason,
		Version:       f.Version,
		ReuploadOf:    f.ReuploadOf,
		UploadedBy:    f.UploadedBy,
		UploadedAt:    f.UploadedAt,
		ValidatedAt:   f.ValidatedAt,
		ExpiresAt:     f.ExpiresAt,
	}
}

func toRule(r *models.ValidationRule) Rule {
	return Rule{
		ID:                r.ID,
		EvaluatorID:       r.EvaluatorID,
		SupplierID:        r.SupplierID,
		ExpectedName:      r.ExpectedName,
		AllowedExtensions: r.AllowedExtensions,
		RequiredKeywords:  r.RequiredKeywords,
		IsRequired:        r.IsRequired,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
	}
}

func fromRule(r *Rule) models.ValidationRule {
	return models.ValidationRule{
		ID:                r.ID,
		SupplierID:        r.SupplierID,
		ExpectedName:      r.ExpectedName,
		AllowedExtensions: r.AllowedExtensions,
		RequiredKeywords:  r.RequiredKeywords,
		IsRequired:        r.IsRequired,
		IsActive:          r.IsActive,
	}
}

func toRules(rules []models.ValidationRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		out = append(out, toRule(&rules[i]))
	}
	return out
}
