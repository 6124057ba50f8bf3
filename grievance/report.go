package grievance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"caseflow/apperr"
)

const payloadVersion = 1

type Grievor struct {
	FirstName string `json:"firstName" validate:"required,max=200"`
	LastName  string `json:"lastName" validate:"required,max=200"`
	MemberID  string `json:"memberId,omitempty" validate:"max=100"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"max=50"`
}

func (g Grievor) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// Grievors is stored as {"version":1,"items":[...]}. Rows written before
// versioning hold a bare array and are read as version 1.
type Grievors struct {
	Version int       `json:"version"`
	Items   []Grievor `json:"items" validate:"min=1,dive"`
}

func (g *Grievors) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		g.Version = payloadVersion
		return json.Unmarshal(raw, &g.Items)
	}
	type plain Grievors
	var p plain
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	*g = Grievors(p)
	if g.Version == 0 {
		g.Version = payloadVersion
	}
	return nil
}

// Names lists grievor full names in filing order.
func (g Grievors) Names() []string {
	out := make([]string, 0, len(g.Items))
	for _, it := range g.Items {
		out = append(out, it.FullName())
	}
	return out
}

type WorkInformation struct {
	Version       int    `json:"version"`
	Employer      string `json:"employer,omitempty" validate:"max=200"`
	Department    string `json:"department,omitempty" validate:"max=200"`
	JobTitle      string `json:"jobTitle,omitempty" validate:"max=200"`
	Supervisor    string `json:"supervisor,omitempty" validate:"max=200"`
	WorkLocation  string `json:"workLocation,omitempty" validate:"max=200"`
	EmployedSince string `json:"employedSince,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ReportFields is the report payload supplied when a case is filed.
type ReportFields struct {
	Grievors          []Grievor `validate:"min=1,dive"`
	WorkInformation   WorkInformation
	Statement         string  `validate:"max=50000"`
	SettlementDesired string  `validate:"max=50000"`
	ArticlesViolated  *string `validate:"omitempty,max=2000"`
}

func (r ReportFields) report(caseID string) Report {
	work := r.WorkInformation
	work.Version = payloadVersion
	return Report{
		CaseID:            caseID,
		Grievors:          Grievors{Version: payloadVersion, Items: r.Grievors},
		WorkInformation:   work,
		Statement:         r.Statement,
		SettlementDesired: r.SettlementDesired,
		ArticlesViolated:  r.ArticlesViolated,
	}
}

func marshalPayload(v any) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grievance: encode payload: %w", err)
	}
	return out, nil
}

func parseGrievors(raw []byte) (Grievors, error) {
	var g Grievors
	if err := json.Unmarshal(raw, &g); err != nil {
		return Grievors{}, apperr.Wrap(apperr.KindValidation, "grievor list is malformed", err)
	}
	return g, nil
}

func parseWorkInformation(raw []byte) (WorkInformation, error) {
	var w WorkInformation
	if err := json.Unmarshal(raw, &w); err != nil {
		return WorkInformation{}, apperr.Wrap(apperr.KindValidation, "work information is malformed", err)
	}
	if w.Version == 0 {
		w.Version = payloadVersion
	}
	return w, nil
}
