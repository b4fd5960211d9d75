package baseline

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a record through the intake approval workflow.
type Status string

const (
	// StatusDraft marks a record still being filled in by field staff.
	StatusDraft Status = "draft"
	// StatusSubmitted marks a record waiting for program review.
	StatusSubmitted Status = "submitted"
	// StatusApproved marks a record accepted into the program.
	StatusApproved Status = "approved"
	// StatusRejected marks a record returned to the submitter.
	StatusRejected Status = "rejected"
)

// Record is one beneficiary baseline intake.
type Record struct {
	ID              uuid.UUID
	BeneficiaryName string
	NIK             string
	Village         string
	HouseholdSize   int
	MonthlyIncome   int64
	Notes           string
	Status          Status
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListFilter narrows a paginated listing.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}
