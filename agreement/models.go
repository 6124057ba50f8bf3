package agreement

import "time"

// Agreement is the collective agreement governing a bargaining unit's cases.
// It owns the step templates.
type Agreement struct {
	ID               string
	OrganizationID   string
	BargainingUnitID *string
	Name             string
	EffectiveFrom    *time.Time
	EffectiveTo      *time.Time
	CreatedAt        time.Time
}

// BargainingUnit is a group of members represented under one agreement.
type BargainingUnit struct {
	ID             string
	OrganizationID string
	Name           string
	CreatedAt      time.Time
}
