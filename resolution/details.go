// Package resolution holds the versioned resolution record stored on a case
// and the rules for merging new outcomes into it.
package resolution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"caseflow/apperr"
)

// CurrentVersion is written on every record. Rows stored before versioning
// have no version field and are read as version 1.
const CurrentVersion = 1

// Details is the resolution metadata persisted as jsonb on the case.
type Details struct {
	Version        int        `json:"version" validate:"gte=1,lte=1"`
	ResolutionType string     `json:"resolutionType,omitempty" validate:"omitempty,max=64"`
	ResolutionDate *time.Time `json:"resolutionDate,omitempty" validate:"required_with=ResolutionType"`
	ResolvedBy     string     `json:"resolvedBy,omitempty" validate:"required_with=ResolutionType"`
	Details        string     `json:"details,omitempty" validate:"max=20000"`
	Outcomes       string     `json:"outcomes,omitempty" validate:"max=20000"`
}

// Parse decodes a stored or submitted record. An empty body or JSON null
// yields nil.
func Parse(raw []byte) (*Details, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "resolution details are not valid JSON", err)
	}
	if d.Version == 0 {
		d.Version = CurrentVersion
	}
	if d.Version > CurrentVersion {
		return nil, apperr.Newf(apperr.KindValidation, "unsupported resolution details version %d", d.Version)
	}
	return &d, nil
}

// Marshal encodes d for storage. nil encodes as SQL NULL.
func Marshal(d *Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("resolution: marshal: %w", err)
	}
	return out, nil
}

// Validate checks field limits and that a typed resolution carries its date
// and resolver.
func (d *Details) Validate() error {
	if d == nil {
		return nil
	}
	return apperr.ValidateStruct(d)
}

func (d *Details) clone() *Details {
	if d == nil {
		return nil
	}
	c := *d
	if d.ResolutionDate != nil {
		at := *d.ResolutionDate
		c.ResolutionDate = &at
	}
	return &c
}
