package grievance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"caseflow/duedate"
	"caseflow/eventlog"
	"caseflow/resolution"
)

type Type string

const (
	TypeIndividual Type = "INDIVIDUAL"
	TypeGroup      Type = "GROUP"
	TypePolicy     Type = "POLICY"
)

func (t Type) Valid() bool {
	switch t {
	case TypeIndividual, TypeGroup, TypePolicy:
		return true
	}
	return false
}

type Stage string

const (
	StageInformal Stage = "INFORMAL"
	StageFormal   Stage = "FORMAL"
)

func (s Stage) Valid() bool {
	return s == StageInformal || s == StageFormal
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSettled   Status = "SETTLED"
	StatusWithdrawn Status = "WITHDRAWN"
	StatusResolved  Status = "RESOLVED"
)

// Statuses is the status vocabulary, in display order.
var Statuses = []Status{StatusActive, StatusSettled, StatusWithdrawn, StatusResolved}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusWithdrawn || s == StatusResolved
}

// MatchStatuses returns the statuses equal to q or containing it, ignoring
// case. A blank q matches nothing.
func MatchStatuses(q string) []Status {
	q = strings.ToUpper(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var out []Status
	for _, s := range Statuses {
		if string(s) == q || strings.Contains(string(s), q) {
			out = append(out, s)
		}
	}
	return out
}

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepOverdue    StepStatus = "OVERDUE"
	StepExtended   StepStatus = "EXTENDED"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepOverdue, StepExtended:
		return true
	}
	return false
}

// Case mirrors the cases table.
type Case struct {
	ID                string
	OrganizationID    string
	BargainingUnitID  string
	AgreementID       *string
	Type              Type
	Category          *string
	Status            Status
	CurrentStage      Stage
	CurrentStepNumber int
	FiledAt           time.Time
	CaseNumber        string
	ExternalID        *string
	Resolution        *resolution.Details
	EstimatedCost     decimal.NullDecimal
	ActualCost        decimal.NullDecimal
	AssignedToID      *string
	CreatorID         string
	LastUpdatedByID   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Step mirrors case_steps. TimeLimitDays is the template limit the due date
// was computed from; nil when the due date was supplied by the caller.
type Step struct {
	ID            string
	CaseID        string
	StepNumber    int
	Stage         Stage
	Status        StepStatus
	DueDate       time.Time
	CompletedDate *time.Time
	Notes         *string
	TimeLimitDays *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Overdue is the display rule: completed steps and steps without an enforced
// limit are never overdue.
func (s Step) Overdue(today time.Time) bool {
	if s.Status == StepCompleted {
		return false
	}
	return duedate.Display(s.DueDate, today, s.TimeLimitDays)
}

type Report struct {
	CaseID            string
	Grievors          Grievors
	WorkInformation   WorkInformation
	Statement         string
	SettlementDesired string
	ArticlesViolated  *string
}

// Detail is a case with its owned records.
type Detail struct {
	Case   Case
	Report Report
	Steps  []Step
	// HasNextStep is true when a template exists for the step after the
	// current one, in any stage.
	HasNextStep bool
}

// Field names the report text fields UpdateField may change.
type Field string

const (
	FieldStatement         Field = "statement"
	FieldArticlesViolated  Field = "articlesViolated"
	FieldSettlementDesired Field = "settlementDesired"
)

func (f Field) column() (string, bool) {
	switch f {
	case FieldStatement:
		return "statement", true
	case FieldArticlesViolated:
		return "articles_violated", true
	case FieldSettlementDesired:
		return "settlement_desired", true
	}
	return "", false
}

func (f Field) eventType() eventlog.EventType {
	switch f {
	case FieldStatement:
		return eventlog.EventStatementUpdated
	case FieldArticlesViolated:
		return eventlog.EventArticlesUpdated
	default:
		return eventlog.EventSettlementUpdated
	}
}

// FieldChange is returned by UpdateField so callers can audit the edit.
type FieldChange struct {
	Field    Field
	Previous *string
	New      *string
}
