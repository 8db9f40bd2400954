package models

// Role codes of tenant users who receive reminders.
const (
	RoleEvaluatorAdmin = "EAD"
	RoleEvaluatorStaff = "EVS"
	RoleSupplierUser   = "SUS"
)

// User is an account that can act on activities or receive notifications.
// Account management lives outside this service; rows are read only.
type User struct {
	ID          int64
	Email       string
	Role        string
	EvaluatorID *int64
	SupplierID  *int64
	IsActive    bool
}

// Actor identifies the caller of a service operation.
type Actor struct {
	UserID      int64
	Role        string
	EvaluatorID int64
	SupplierID  *int64
}

// System is the actor recorded for scheduled jobs.
var System = Actor{Role: "SYSTEM"}
