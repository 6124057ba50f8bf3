package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type captureQuerier struct {
	queries int
	args    []any
}

func (c *captureQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (c *captureQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	c.queries++
	return nil, errors.New("unexpected query")
}

func (c *captureQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	c.queries++
	c.args = args
	return eventRow{}
}

type eventRow struct{}

func (eventRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = "ev-1"
	*(dest[1].(*string)) = "case-1"
	*(dest[2].(*string)) = "user-1"
	*(dest[3].(*EventType)) = EventAssigneeChanged
	*(dest[4].(*string)) = ""
	*(dest[5].(*string)) = "user-2"
	*(dest[6].(*time.Time)) = time.Unix(0, 0)
	return nil
}

func TestEventType_IsKnown(t *testing.T) {
	if !EventCreated.IsKnown() || !EventElevated.IsKnown() {
		t.Fatalf("expected built-in types to be known")
	}
	legacy := EventType("NOTE_ADDED")
	if legacy.IsKnown() {
		t.Fatalf("expected historical value to be unknown")
	}
	if string(legacy) != "NOTE_ADDED" {
		t.Fatalf("unknown values must round-trip unchanged")
	}
}

func TestAppend_KeepsEmptyStringForUnassigned(t *testing.T) {
	q := &captureQuerier{}
	ev, err := New().Append(context.Background(), q, Entry{
		CaseID: "case-1", UserID: "user-1", Type: EventAssigneeChanged, Previous: "", New: "user-2",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if q.args[3] != "" {
		t.Fatalf("expected empty string previous value, got %#v", q.args[3])
	}
	if q.args[2] != "ASSIGNEE_CHANGED" {
		t.Fatalf("unexpected type arg %#v", q.args[2])
	}
	if ev.New != "user-2" || ev.Previous != "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAppend_RejectsEmptyType(t *testing.T) {
	q := &captureQuerier{}
	if _, err := New().Append(context.Background(), q, Entry{CaseID: "c", UserID: "u"}); !errors.Is(err, ErrEmptyType) {
		t.Fatalf("expected ErrEmptyType, got %v", err)
	}
	if q.queries != 0 {
		t.Fatalf("no statement should run")
	}
}

func TestCreatorsFor_EmptyInputSkipsStore(t *testing.T) {
	q := &captureQuerier{}
	got, err := New().CreatorsFor(context.Background(), q, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("unexpected result %v %v", got, err)
	}
	if q.queries != 0 {
		t.Fatalf("expected no round trip for an empty page")
	}
}
