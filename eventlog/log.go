// Package eventlog is the append-only audit trail for cases.
package eventlog

import (
	"context"
	"errors"
	"fmt"

	"caseflow/db"
)

var ErrEmptyType = errors.New("eventlog: event type required")

type Log struct{}

func New() *Log {
	return &Log{}
}

// Append inserts one event. There is no update path; the table rejects
// updates as well.
func (l *Log) Append(ctx context.Context, q db.Querier, e Entry) (Event, error) {
	if e.Type == "" {
		return Event{}, ErrEmptyType
	}
	if e.CaseID == "" || e.UserID == "" {
		return Event{}, fmt.Errorf("eventlog: case and user required")
	}

	const query = `
		INSERT INTO case_events (case_id, user_id, event_type, previous_value, new_value)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, case_id, user_id, event_type, COALESCE(previous_value, ''), COALESCE(new_value, ''), created_at
	`
	var ev Event
	err := q.QueryRow(ctx, query, e.CaseID, e.UserID, string(e.Type), e.Previous, e.New).Scan(
		&ev.ID, &ev.CaseID, &ev.UserID, &ev.Type, &ev.Previous, &ev.New, &ev.CreatedAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: append %s: %w", e.Type, err)
	}
	return ev, nil
}

// ListForCase returns events in append order.
func (l *Log) ListForCase(ctx context.Context, q db.Querier, caseID string) ([]Event, error) {
	const query = `
		SELECT id, case_id, user_id, event_type, COALESCE(previous_value, ''), COALESCE(new_value, ''), created_at
		FROM case_events
		WHERE case_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := q.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.UserID, &ev.Type, &ev.Previous, &ev.New, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CreatorsFor resolves the creator of every case in one query, keyed by
// case id. Cases without a CREATED event are absent from the result.
func (l *Log) CreatorsFor(ctx context.Context, q db.Querier, caseIDs []string) (map[string]Creator, error) {
	out := make(map[string]Creator, len(caseIDs))
	if len(caseIDs) == 0 {
		return out, nil
	}

	const query = `
		SELECT DISTINCT ON (e.case_id) e.case_id, u.id, u.full_name, u.email
		FROM case_events e
		JOIN users u ON u.id = e.user_id
		WHERE e.case_id = ANY($1) AND e.event_type = $2
		ORDER BY e.case_id, e.created_at ASC, e.id ASC
	`
	rows, err := q.Query(ctx, query, caseIDs, string(EventCreated))
	if err != nil {
		return nil, fmt.Errorf("eventlog: creators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Creator
		if err := rows.Scan(&c.CaseID, &c.UserID, &c.FullName, &c.Email); err != nil {
			return nil, fmt.Errorf("eventlog: scan creator: %w", err)
		}
		out[c.CaseID] = c
	}
	return out, rows.Err()
}

// DeleteForCase is only called while deleting the case itself.
func (l *Log) DeleteForCase(ctx context.Context, q db.Querier, caseID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM case_events WHERE case_id = $1`, caseID); err != nil {
		return fmt.Errorf("eventlog: delete for case: %w", err)
	}
	return nil
}
