package sequence

import (
	"errors"
	"testing"

	"caseflow/apperr"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		kind Kind
		n    int64
		want string
	}{
		{KindGrievance, 7, "G-007"},
		{KindGrievance, 1000, "G-1000"},
		{KindGrievance, 1, "G-001"},
		{KindComplaint, 42, "C-042"},
		{KindComplaint, 999, "C-999"},
	}
	for _, tc := range cases {
		if got := Format(tc.kind, tc.n); got != tc.want {
			t.Errorf("Format(%s, %d) = %q, want %q", tc.kind, tc.n, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	kind, n, err := Parse("G-1000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if kind != KindGrievance || n != 1000 {
		t.Fatalf("unexpected parse result %s %d", kind, n)
	}

	kind, n, err = Parse("C-007")
	if err != nil || kind != KindComplaint || n != 7 {
		t.Fatalf("unexpected parse result %s %d %v", kind, n, err)
	}

	for _, bad := range []string{"", "G7", "G-7", "X-007", "G-0007", "G-000", "G-abc"} {
		if _, _, err := Parse(bad); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Parse(%q) expected validation error, got %v", bad, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("complaint"); err != nil || k != KindComplaint {
		t.Fatalf("unexpected %v %v", k, err)
	}
	if _, err := ParseKind("invoice"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
