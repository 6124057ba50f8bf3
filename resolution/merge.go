package resolution

import (
	"strings"
	"time"
)

type Input struct {
	Existing *Details
	// Outcomes is the free-text outcome submitted with a status change.
	// nil and blank both mean no outcome was submitted.
	Outcomes *string
	// Supplied is the structured record submitted with the status change.
	Supplied  *Details
	ActorID   string
	NewStatus string
	Now       time.Time
}

// Merge computes the record to store.
//
// With outcomes and no record anywhere, a record is synthesized from the new
// status. With outcomes and a record (supplied wins over existing), only
// outcomes and resolutionDate change. Without outcomes the supplied record
// is stored as is, so nil clears the field.
//
// Any returned record with a resolutionType also has resolutionDate and
// resolvedBy, filled from Now and ActorID when missing.
func Merge(in Input) *Details {
	if !hasOutcomes(in.Outcomes) {
		return complete(in.Supplied.clone(), in)
	}

	outcomes := *in.Outcomes
	now := in.Now

	base := in.Supplied
	if base == nil {
		base = in.Existing
	}
	if base == nil {
		return &Details{
			Version:        CurrentVersion,
			ResolutionType: in.NewStatus,
			ResolutionDate: &now,
			ResolvedBy:     in.ActorID,
			Details:        outcomes,
			Outcomes:       outcomes,
		}
	}

	merged := base.clone()
	merged.Outcomes = outcomes
	merged.ResolutionDate = &now
	return complete(merged, in)
}

func complete(d *Details, in Input) *Details {
	if d == nil {
		return nil
	}
	if d.Version == 0 {
		d.Version = CurrentVersion
	}
	if d.ResolutionType == "" {
		return d
	}
	if d.ResolutionDate == nil {
		now := in.Now
		d.ResolutionDate = &now
	}
	if d.ResolvedBy == "" {
		d.ResolvedBy = in.ActorID
	}
	return d
}

func hasOutcomes(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
