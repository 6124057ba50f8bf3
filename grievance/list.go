package grievance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"caseflow/db"
	"caseflow/eventlog"
	"caseflow/identity"
	"caseflow/metrics"
)

// Filters narrow ListPage. Blank fields are ignored. Text filters match
// substrings without regard to case; Category matches exactly.
type Filters struct {
	CaseNumber   string
	Category     string
	AssigneeName string
	CreatorName  string
	GrievorName  string
	Status       string
}

// StepInfo summarises the current step of a listed case.
type StepInfo struct {
	StepID        string
	StepNumber    int
	Stage         Stage
	Status        StepStatus
	DueDate       time.Time
	TimeLimitDays *int
}

type ListItem struct {
	Case         Case
	AssigneeName *string
	Creator      *eventlog.Creator
	CurrentStep  *StepInfo
	Overdue      bool
}

type Page struct {
	Items      []ListItem
	TotalCount int
	Page       int
	PageSize   int
}

// CreatorSource resolves case creators for a batch of case ids.
type CreatorSource interface {
	CreatorsFor(ctx context.Context, q db.Querier, caseIDs []string) (map[string]eventlog.Creator, error)
}

// Lister serves the paged case list. Items and the total run concurrently,
// so q must be a pool rather than a transaction.
type Lister struct {
	q           db.Querier
	creators    CreatorSource
	pageSize    int
	maxPageSize int
	now         func() time.Time
}

func NewLister(q db.Querier, creators CreatorSource, pageSize, maxPageSize int) *Lister {
	if creators == nil {
		creators = eventlog.New()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if maxPageSize < pageSize {
		maxPageSize = pageSize
	}
	return &Lister{q: q, creators: creators, pageSize: pageSize, maxPageSize: maxPageSize, now: time.Now}
}

func (l *Lister) WithClock(now func() time.Time) *Lister {
	l.now = now
	return l
}

// ListPage returns one page of the actor's cases, newest filing first, with
// the unpaged total. Pages are 1-based; out of range values are clamped.
func (l *Lister) ListPage(ctx context.Context, actor identity.Actor, page, pageSize int, f Filters) (p Page, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("list_page", started, err) }()

	if err := actor.Require(); err != nil {
		return Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = l.pageSize
	}
	if pageSize > l.maxPageSize {
		pageSize = l.maxPageSize
	}

	where, args := listWhere(actor.OrganizationID, f)

	var (
		items []ListItem
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = l.items(gctx, where, args, pageSize, (page-1)*pageSize)
		return err
	})
	g.Go(func() error {
		query := `SELECT count(*) FROM cases c LEFT JOIN users a ON a.id = c.assigned_to_id WHERE ` + where
		if err := l.q.QueryRow(gctx, query, args...).Scan(&total); err != nil {
			return fmt.Errorf("grievance: count cases: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}

	if err := l.decorate(ctx, items); err != nil {
		return Page{}, err
	}
	return Page{Items: items, TotalCount: total, Page: page, PageSize: pageSize}, nil
}

func (l *Lister) items(ctx context.Context, where string, args []any, limit, offset int) ([]ListItem, error) {
	query := fmt.Sprintf(`
		SELECT %s, a.full_name
		FROM cases c
		LEFT JOIN users a ON a.id = c.assigned_to_id
		WHERE %s
		ORDER BY c.filed_at DESC, c.id DESC
		LIMIT %d OFFSET %d`, caseColumns, where, limit, offset)

	rows, err := l.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("grievance: list cases: %w", err)
	}
	defer rows.Close()

	var out []ListItem
	for rows.Next() {
		var item ListItem
		c, err := scanCase(listRow{rows: rows, extra: []any{&item.AssigneeName}})
		if err != nil {
			return nil, fmt.Errorf("grievance: scan list item: %w", err)
		}
		item.Case = c
		out = append(out, item)
	}
	return out, rows.Err()
}

// decorate attaches creators and current steps with one query each.
func (l *Lister) decorate(ctx context.Context, items []ListItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.Case.ID)
	}

	creators, err := l.creators.CreatorsFor(ctx, l.q, ids)
	if err != nil {
		return err
	}
	steps, err := StepInfoFor(ctx, l.q, ids)
	if err != nil {
		return err
	}

	today := l.now()
	for i := range items {
		id := items[i].Case.ID
		if c, ok := creators[id]; ok {
			items[i].Creator = &c
		}
		if s, ok := steps[id]; ok {
			items[i].CurrentStep = &s
			items[i].Overdue = Step{Status: s.Status, DueDate: s.DueDate, TimeLimitDays: s.TimeLimitDays}.Overdue(today)
		}
	}
	return nil
}

// StepInfoFor loads the current step of each case in one query, keyed by
// case id.
func StepInfoFor(ctx context.Context, q db.Querier, caseIDs []string) (map[string]StepInfo, error) {
	out := make(map[string]StepInfo, len(caseIDs))
	if len(caseIDs) == 0 {
		return out, nil
	}

	const query = `
		SELECT s.case_id, s.id, s.step_number, s.stage, s.status, s.due_date, s.time_limit_days
		FROM case_steps s
		JOIN cases c ON c.id = s.case_id AND c.current_step_number = s.step_number
		WHERE s.case_id = ANY($1)
	`
	rows, err := q.Query(ctx, query, caseIDs)
	if err != nil {
		return nil, fmt.Errorf("grievance: step info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			caseID string
			s      StepInfo
		)
		if err := rows.Scan(&caseID, &s.StepID, &s.StepNumber, &s.Stage, &s.Status, &s.DueDate, &s.TimeLimitDays); err != nil {
			return nil, fmt.Errorf("grievance: scan step info: %w", err)
		}
		out[caseID] = s
	}
	return out, rows.Err()
}

func listWhere(orgID string, f Filters) (string, []any) {
	where := []string{"c.organization_id = $1"}
	args := []any{orgID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if v := strings.TrimSpace(f.CaseNumber); v != "" {
		where = append(where, "c.case_number ILIKE "+next(contains(v)))
	}
	if v := strings.TrimSpace(f.Category); v != "" {
		where = append(where, "c.category = "+next(v))
	}
	if v := strings.TrimSpace(f.AssigneeName); v != "" {
		where = append(where, "a.full_name ILIKE "+next(contains(v)))
	}
	if v := strings.TrimSpace(f.CreatorName); v != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM case_events e JOIN users u ON u.id = e.user_id
			WHERE e.case_id = c.id AND e.event_type = '%s' AND u.full_name ILIKE %s)`,
			eventlog.EventCreated, next(contains(v))))
	}
	if v := strings.TrimSpace(f.GrievorName); v != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM reports r,
				jsonb_array_elements(CASE WHEN jsonb_typeof(r.grievors) = 'array' THEN r.grievors ELSE r.grievors->'items' END) g
			WHERE r.case_id = c.id
			  AND concat_ws(' ', g->>'firstName', g->>'lastName') ILIKE `+next(contains(v))+`)`)
	}
	if v := strings.TrimSpace(f.Status); v != "" {
		matched := MatchStatuses(v)
		statuses := make([]string, 0, len(matched))
		for _, s := range matched {
			statuses = append(statuses, string(s))
		}
		// No match yields an empty array, which filters everything out.
		where = append(where, "c.status = ANY("+next(statuses)+")")
	}
	return strings.Join(where, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}

// listRow appends extra scan targets after the case columns.
type listRow struct {
	rows  interface{ Scan(dest ...any) error }
	extra []any
}

func (r listRow) Scan(dest ...any) error {
	return r.rows.Scan(append(dest, r.extra...)...)
}
