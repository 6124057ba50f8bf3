package sequence

import (
	"fmt"
	"strconv"
	"strings"

	"caseflow/apperr"
)

func (k Kind) prefix() string {
	switch k {
	case KindComplaint:
		return "C"
	default:
		return "G"
	}
}

// Format renders n as a user-facing number: G-007, C-042, G-1000.
func Format(kind Kind, n int64) string {
	return fmt.Sprintf("%s-%03d", kind.prefix(), n)
}

// Parse reverses Format.
func Parse(number string) (Kind, int64, error) {
	prefix, digits, ok := strings.Cut(strings.TrimSpace(number), "-")
	if !ok || len(digits) < 3 {
		return 0, 0, apperr.Newf(apperr.KindValidation, "malformed number %q", number)
	}
	var kind Kind
	switch prefix {
	case "G":
		kind = KindGrievance
	case "C":
		kind = KindComplaint
	default:
		return 0, 0, apperr.Newf(apperr.KindValidation, "unknown number prefix %q", prefix)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, 0, apperr.Newf(apperr.KindValidation, "malformed number %q", number)
	}
	// G-0007 would parse but never be produced by Format.
	if Format(kind, n) != prefix+"-"+digits {
		return 0, 0, apperr.Newf(apperr.KindValidation, "non-canonical number %q", number)
	}
	return kind, n, nil
}
