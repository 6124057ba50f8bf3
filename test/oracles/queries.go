// Package oracles holds SQL checks that must return no rows however the
// engine is driven.
package oracles

import (
	"context"
	"fmt"

	"caseflow/db"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "unique_case_number",
			SQL: `SELECT organization_id, case_number, count(*) FROM cases
                  GROUP BY organization_id, case_number HAVING count(*) > 1`,
		},
		{
			Name: "case_numbers_within_counter",
			SQL: `SELECT c.organization_id, max(substring(c.case_number FROM 3)::bigint) AS highest, s.grievance_seq
                  FROM cases c
                  JOIN sequence_counters s ON s.organization_id = c.organization_id
                  GROUP BY c.organization_id, s.grievance_seq
                  HAVING max(substring(c.case_number FROM 3)::bigint) > s.grievance_seq`,
		},
		{
			Name: "current_step_exists",
			SQL: `SELECT c.id, c.current_step_number FROM cases c
                  WHERE NOT EXISTS (
                      SELECT 1 FROM case_steps s
                      WHERE s.case_id = c.id AND s.step_number = c.current_step_number)`,
		},
		{
			Name: "case_has_report_and_created_event",
			SQL: `SELECT c.id FROM cases c
                  WHERE NOT EXISTS (SELECT 1 FROM reports r WHERE r.case_id = c.id)
                     OR (SELECT count(*) FROM case_events e WHERE e.case_id = c.id AND e.event_type = 'CREATED') <> 1`,
		},
		{
			Name: "completed_step_has_date",
			SQL: `SELECT id, status, completed_date FROM case_steps
                  WHERE (status = 'COMPLETED') <> (completed_date IS NOT NULL)`,
		},
		{
			// Deleting a case nulls the link and leaves the complaint GRIEVED,
			// so only the linked direction holds.
			Name: "linked_complaint_is_grieved",
			SQL: `SELECT id, status, case_id FROM complaints
                  WHERE case_id IS NOT NULL AND status <> 'GRIEVED'`,
		},
		{
			Name: "elevation_event_once",
			SQL: `SELECT p.case_id, count(*) FROM complaints p
                  JOIN case_events e ON e.case_id = p.case_id AND e.event_type = 'ELEVATED'
                  GROUP BY p.case_id HAVING count(*) <> 1`,
		},
		{
			Name: "resolution_type_needs_date_and_resolver",
			SQL: `SELECT id, resolution_details FROM cases
                  WHERE resolution_details ? 'resolutionType'
                    AND (NOT resolution_details ? 'resolutionDate' OR NOT resolution_details ? 'resolvedBy')`,
		},
		{
			Name: "event_log_append_only",
			SQL: `SELECT 'missing case_events_no_update trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'case_events_no_update')`,
		},
	}
}

// Run executes every oracle and returns the first one that found a row,
// with that row rendered as text. An empty name means all passed.
func Run(ctx context.Context, q db.Querier) (string, string, error) {
	for _, o := range All() {
		rows, err := q.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
