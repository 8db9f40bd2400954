package validation

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// ReasonNoMatch is reported when a filename matches no rule while the
// supplier has at least one required rule.
const ReasonNoMatch = "no matching expected file for this upload."

// MatchResult is the outcome of validating one filename.
// Rule is nil when the upload was accepted without matching any rule.
type MatchResult struct {
	Accepted bool
	Rule     *models.ValidationRule
	Reason   string
}

// Match validates filename against rules, which must be in evaluation
// order. The first active rule whose expected name is contained in the
// lowercased filename wins; later rules are not consulted even if they
// would also match.
func Match(rules []models.ValidationRule, filename string) MatchResult {
	name := strings.ToLower(filename)

	var matched *models.ValidationRule
	requiredExists := false
	for i := range rules {
		r := &rules[i]
		exp := strings.ToLower(strings.TrimSpace(r.ExpectedName))
		if !r.IsActive || exp == "" {
			continue
		}
		if r.IsRequired {
			requiredExists = true
		}
		if matched == nil && strings.Contains(name, exp) {
			matched = r
		}
	}

	if matched == nil {
		if requiredExists {
			return MatchResult{Reason: ReasonNoMatch}
		}
		return MatchResult{Accepted: true}
	}

	if exts := NormalizeList(matched.AllowedExtensions, true); len(exts) > 0 {
		ext := fileExtension(name)
		if !contains(exts, ext) {
			return MatchResult{
				Rule:   matched,
				Reason: fmt.Sprintf("extension %q not allowed, expected one of {%s}", ext, strings.Join(exts, ", ")),
			}
		}
	}

	var missing []string
	for _, kw := range NormalizeList(matched.RequiredKeywords, false) {
		if !strings.Contains(name, kw) {
			missing = append(missing, kw)
		}
	}
	if len(missing) > 0 {
		return MatchResult{
			Rule:   matched,
			Reason: "missing required keywords: " + strings.Join(missing, ", "),
		}
	}

	return MatchResult{Accepted: true, Rule: matched}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
