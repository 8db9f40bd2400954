// Package models defines the LFRAS records persisted in PostgreSQL and passed
// between repositories, services and the pure rule logic.
package models

import "time"

// ValidationRule describes one expected file for a supplier.
//
// AllowedExtensions and RequiredKeywords are kept in canonical form:
// lowercase, trimmed, no leading dot, no empties, deduplicated.
type ValidationRule struct {
	ID                int64
	EvaluatorID       int64
	SupplierID        int64
	ExpectedName      string
	AllowedExtensions []string
	RequiredKeywords  []string
	IsRequired        bool
	IsActive          bool
	CreatedAt         time.Time
}
