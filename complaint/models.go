package complaint

import (
	"time"

	"caseflow/grievance"
)

// Status is the complaint lifecycle. GRIEVED is terminal and set only by
// elevation.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
	StatusGrieved  Status = "GRIEVED"
)

// Complaint mirrors the complaints table. CaseID is the back-reference to
// the case it was elevated to.
type Complaint struct {
	ID                string
	OrganizationID    string
	BargainingUnitID  string
	AgreementID       *string
	Number            string
	Status            Status
	Complainant       grievance.Grievor
	WorkInformation   grievance.WorkInformation
	Statement         string
	SettlementDesired string
	ArticlesViolated  *string
	CaseID            *string
	CreatorID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReportFields is the case report an elevation files for this complaint.
func (c Complaint) ReportFields() grievance.ReportFields {
	return grievance.ReportFields{
		Grievors:          []grievance.Grievor{c.Complainant},
		WorkInformation:   c.WorkInformation,
		Statement:         c.Statement,
		SettlementDesired: c.SettlementDesired,
		ArticlesViolated:  c.ArticlesViolated,
	}
}

// ConvertResult is returned by Convert. IsNew is false when the complaint
// had already been elevated and the existing case is returned.
type ConvertResult struct {
	CaseID string
	IsNew  bool
}
