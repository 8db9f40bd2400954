package validation

import (
	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// GateDecision is the verdict on an IN_PROGRESS → COMPLETED request.
// Err is nil exactly when Allowed is true.
type GateDecision struct {
	Allowed bool
	Err     error
}

// CanComplete checks, in order: the activity is not already ended, it is
// in progress, no file is in a failed state, and every required rule is
// covered. The first failing check decides.
func CanComplete(status models.ActivityStatus, files []models.UploadedFile, report CoverageReport) GateDecision {
	if status.Terminal() {
		return GateDecision{Err: common.ErrActivityEnded}
	}
	if status != models.ActivityInProgress {
		return GateDecision{Err: common.ErrActivityNotInProgress}
	}
	for _, f := range files {
		if f.Status.Failed() {
			return GateDecision{Err: common.ErrFailedFilesPresent}
		}
	}
	if report.AnyActiveRules && len(report.RequiredMissing) > 0 {
		names := append([]string(nil), report.RequiredMissing...)
		return GateDecision{Err: &common.MissingRequiredError{Names: names}}
	}
	return GateDecision{Allowed: true}
}
