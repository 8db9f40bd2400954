package validation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

var headerAliases = map[string]string{
	"expected_name":      "expected_name",
	"name":               "expected_name",
	"required":           "required",
	"keywords":           "keywords",
	"required_keywords":  "keywords",
	"extensions":         "extensions",
	"allowed_extensions": "extensions",
}

// ParseRulesCSV reads a rule sheet with the header
// expected_name,required,keywords,extensions (aliases: name,
// allowed_extensions). Returned rules are normalised, active and carry the
// given supplier. Any bad row fails the whole sheet.
func ParseRulesCSV(r io.Reader, evaluatorID, supplierID int64) ([]models.ValidationRule, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", common.ErrRuleImportFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRuleImportFormat, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := headerAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	if _, ok := cols["expected_name"]; !ok {
		return nil, fmt.Errorf("%w: missing expected_name column", common.ErrRuleImportFormat)
	}

	cell := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rules []models.ValidationRule
	seen := map[string]int{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRuleImportFormat, err)
		}
		line, _ := cr.FieldPos(0)

		if isBlank(rec) {
			continue
		}
		name := cell(rec, "expected_name")
		if name == "" {
			return nil, fmt.Errorf("%w: row %d: expected_name is required", common.ErrRuleImportFormat, line)
		}
		key := strings.ToLower(name)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: row %d: duplicate expected_name %q (first on row %d)", common.ErrRuleImportFormat, line, name, prev)
		}
		seen[key] = line

		rule := models.ValidationRule{
			EvaluatorID:       evaluatorID,
			SupplierID:        supplierID,
			ExpectedName:      name,
			IsRequired:        parseBool(cell(rec, "required")),
			RequiredKeywords:  SplitList(cell(rec, "keywords"), false),
			AllowedExtensions: SplitList(cell(rec, "extensions"), true),
			IsActive:          true,
		}
		if err := NormalizeRule(&rule); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
