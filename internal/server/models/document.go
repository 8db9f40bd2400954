package models

import "time"

// Document is a compliance document tracked for expiry.
type Document struct {
	ID                   int64
	EvaluatorID          int64
	SupplierID           *int64
	Title                string
	ExpiresAt            *time.Time
	LastExpiryNotifiedAt *time.Time
	IsActive             bool
}
