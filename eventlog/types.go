package eventlog

import "time"

// EventType is an open vocabulary. The constants are the values this service
// writes; other stored values are carried through unchanged.
type EventType string

const (
	EventCreated           EventType = "CREATED"
	EventStepAdvanced      EventType = "STEP_ADVANCED"
	EventStepUpdated       EventType = "STEP_UPDATED"
	EventStatusChanged     EventType = "STATUS_CHANGED"
	EventStageChanged      EventType = "STAGE_CHANGED"
	EventAssigneeChanged   EventType = "ASSIGNEE_CHANGED"
	EventStatementUpdated  EventType = "STATEMENT_UPDATED"
	EventArticlesUpdated   EventType = "ARTICLES_VIOLATED_UPDATED"
	EventSettlementUpdated EventType = "SETTLEMENT_DESIRED_UPDATED"
	EventCostsUpdated      EventType = "COSTS_UPDATED"
	EventElevated          EventType = "ELEVATED"
)

var known = map[EventType]struct{}{
	EventCreated:           {},
	EventStepAdvanced:      {},
	EventStepUpdated:       {},
	EventStatusChanged:     {},
	EventStageChanged:      {},
	EventAssigneeChanged:   {},
	EventStatementUpdated:  {},
	EventArticlesUpdated:   {},
	EventSettlementUpdated: {},
	EventCostsUpdated:      {},
	EventElevated:          {},
}

// IsKnown is false for historical or newer values this build has no
// constant for.
func (t EventType) IsKnown() bool {
	_, ok := known[t]
	return ok
}

// Event is one immutable audit row. Previous and New use "" for "none";
// rows written before the columns were nullable read the same way.
type Event struct {
	ID        string
	CaseID    string
	UserID    string
	Type      EventType
	Previous  string
	New       string
	CreatedAt time.Time
}

type Entry struct {
	CaseID   string
	UserID   string
	Type     EventType
	Previous string
	New      string
}

// Creator is the user behind a case's first CREATED event.
type Creator struct {
	CaseID   string
	UserID   string
	FullName string
	Email    string
}
