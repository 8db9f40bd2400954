package validation

import (
	"strings"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// CoverageReport summarises which rules an activity's validated files satisfy.
type CoverageReport struct {
	AnyActiveRules  bool           `json:"any_active_rules"`
	RequiredMissing []string       `json:"required_missing"`
	MatchedCounts   map[string]int `json:"matched_counts"`
}

// Coverage counts VALID_OK files per active rule. Only VALID_OK files count;
// a rejected or in-flight upload never covers a rule.
func Coverage(rules []models.ValidationRule, files []models.UploadedFile) CoverageReport {
	report := CoverageReport{
		RequiredMissing: []string{},
		MatchedCounts:   map[string]int{},
	}

	valid := make([]string, 0, len(files))
	for _, f := range files {
		if f.Status == models.FileValidOK {
			valid = append(valid, strings.ToLower(f.OriginalName))
		}
	}

	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		report.AnyActiveRules = true

		exp := strings.ToLower(strings.TrimSpace(r.ExpectedName))
		if exp == "" {
			continue
		}
		n := 0
		for _, name := range valid {
			if strings.Contains(name, exp) {
				n++
			}
		}
		report.MatchedCounts[exp] = n
		if r.IsRequired && n == 0 {
			report.RequiredMissing = append(report.RequiredMissing, r.ExpectedName)
		}
	}

	return report
}
