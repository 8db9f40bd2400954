// Package validation holds the pure rule logic of LFRAS: matching an
// uploaded filename against supplier rules, computing rule coverage for an
// activity and deciding whether an activity may be completed.
//
// Nothing here touches storage; callers load rules and files and pass them in.
package validation

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/models"
)

// NormalizeList lowercases and trims items, drops empties and duplicates and
// keeps first-seen order. With stripDot, leading dots are removed so ".PDF"
// and "pdf" collapse to one entry.
func NormalizeList(items []string, stripDot bool) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		v := strings.ToLower(strings.TrimSpace(it))
		if stripDot {
			v = strings.TrimSpace(strings.TrimLeft(v, "."))
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a delimited cell on '|' or ',' before normalising it.
func SplitList(cell string, stripDot bool) []string {
	parts := strings.FieldsFunc(cell, func(r rune) bool { return r == '|' || r == ',' })
	return NormalizeList(parts, stripDot)
}

// NormalizeRule brings a rule into canonical form in place and rejects rules
// that cannot be stored.
func NormalizeRule(r *models.ValidationRule) error {
	r.ExpectedName = strings.TrimSpace(r.ExpectedName)
	if r.ExpectedName == "" {
		return fmt.Errorf("%w: expected name is empty", common.ErrRuleInvalid)
	}
	if r.SupplierID == 0 {
		return fmt.Errorf("%w: supplier is not set", common.ErrRuleInvalid)
	}
	r.AllowedExtensions = NormalizeList(r.AllowedExtensions, true)
	r.RequiredKeywords = NormalizeList(r.RequiredKeywords, false)
	return nil
}

// fileExtension returns the lowercased text after the last dot, or "".
func fileExtension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}
