package validation

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(name string, status models.FileStatus) models.UploadedFile {
	return models.UploadedFile{OriginalName: name, Status: status, Version: 1}
}

func TestCoverage_NoActiveRules(t *testing.T) {
	inactive := rule(1, "w9", true, nil, nil)
	inactive.IsActive = false

	for _, rules := range [][]models.ValidationRule{nil, {inactive}} {
		got := Coverage(rules, []models.UploadedFile{file("w9.pdf", models.FileValidOK), file("x", models.FileValidFailed)})
		want := CoverageReport{RequiredMissing: []string{}, MatchedCounts: map[string]int{}}
		assert.Empty(t, cmp.Diff(want, got))
	}
}

func TestCoverage_CountsOnlyValidFiles(t *testing.T) {
	rules := []models.ValidationRule{
		rule(1, "A", true, nil, nil),
		rule(2, "B", false, nil, nil),
		rule(3, "W9", true, nil, nil),
	}
	files := []models.UploadedFile{
		file("b_1.pdf", models.FileValidOK),
		file("b_2.pdf", models.FileValidOK),
		file("a.pdf", models.FileValidFailed),
		file("w9.pdf", models.FileValidating),
		file("w9_v2.pdf", models.FileValidOK),
	}

	got := Coverage(rules, files)

	want := CoverageReport{
		AnyActiveRules:  true,
		RequiredMissing: []string{"A"},
		MatchedCounts:   map[string]int{"a": 0, "b": 2, "w9": 1},
	}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestCanComplete(t *testing.T) {
	satisfied := CoverageReport{AnyActiveRules: true, RequiredMissing: []string{}}
	missing := CoverageReport{AnyActiveRules: true, RequiredMissing: []string{"A", "W9"}}
	ok := []models.UploadedFile{file("a.pdf", models.FileValidOK)}
	failed := []models.UploadedFile{file("a.pdf", models.FileValidOK), file("b.doc", models.FileUploadFailed)}

	tests := []struct {
		name    string
		status  models.ActivityStatus
		files   []models.UploadedFile
		report  CoverageReport
		wantErr error
	}{
		{"completed", models.ActivityCompleted, ok, satisfied, common.ErrActivityEnded},
		{"cancelled", models.ActivityCancelled, ok, satisfied, common.ErrActivityEnded},
		{"started", models.ActivityStarted, ok, satisfied, common.ErrActivityNotInProgress},
		{"failed files", models.ActivityInProgress, failed, satisfied, common.ErrFailedFilesPresent},
		{"all good", models.ActivityInProgress, ok, satisfied, nil},
		{"no rules at all", models.ActivityInProgress, nil, CoverageReport{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanComplete(tt.status, tt.files, tt.report)
			if tt.wantErr == nil {
				assert.True(t, d.Allowed)
				assert.NoError(t, d.Err)
				return
			}
			assert.False(t, d.Allowed)
			assert.ErrorIs(t, d.Err, tt.wantErr)
		})
	}

	t.Run("missing required", func(t *testing.T) {
		d := CanComplete(models.ActivityInProgress, ok, missing)
		require.False(t, d.Allowed)
		var mr *common.MissingRequiredError
		require.True(t, errors.As(d.Err, &mr))
		assert.Equal(t, []string{"A", "W9"}, mr.Names)
	})
}

// A required rule with an extension constraint: the wrong extension is
// rejected, the right one is accepted and unlocks completion.
func TestScenario_SingleRequiredRule(t *testing.T) {
	rules := []models.ValidationRule{rule(1, "w9", true, []string{"pdf"}, nil)}

	var files []models.UploadedFile
	for _, name := range []string{"w9_form.docx", "w9_form.pdf"} {
		res := Match(rules, name)
		st := models.FileValidFailed
		if res.Accepted {
			st = models.FileValidOK
		}
		files = append(files, file(name, st))
	}
	require.Equal(t, models.FileValidFailed, files[0].Status)
	require.Equal(t, models.FileValidOK, files[1].Status)

	report := Coverage(rules, files)
	assert.Empty(t, report.RequiredMissing)

	// the rejected attempt still blocks until it is removed
	assert.ErrorIs(t, CanComplete(models.ActivityInProgress, files, report).Err, common.ErrFailedFilesPresent)
	assert.True(t, CanComplete(models.ActivityInProgress, files[1:], report).Allowed)
}

func TestScenario_OptionalOnly(t *testing.T) {
	rules := []models.ValidationRule{rule(1, "A", true, nil, nil), rule(2, "B", false, nil, nil)}
	files := []models.UploadedFile{file("B.pdf", models.FileValidOK)}

	report := Coverage(rules, files)
	assert.Equal(t, []string{"A"}, report.RequiredMissing)

	d := CanComplete(models.ActivityInProgress, files, report)
	assert.EqualError(t, d.Err, "required files missing: A")
}
