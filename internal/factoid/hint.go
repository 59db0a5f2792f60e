package factoid

import (
	"fmt"
	"strings"
)

// TimeHint states how many datetimes a factoid is expected to carry and in which role
type TimeHint int

const (
	// HintNone expects no datetime
	HintNone TimeHint = iota
	// HintStart expects a start, optionally followed by an end
	HintStart
	// HintEnd expects an end only
	HintEnd
	// HintBoth expects a start and an end
	HintBoth
	// HintAfter expects no datetime; the start is now
	HintAfter
	// HintThen behaves like HintEnd
	HintThen
	// HintStill behaves like HintEnd
	HintStill
)

var hintNames = []string{"none", "start", "end", "both", "after", "then", "still"}

// String returns the hint name
func (h TimeHint) String() string {
	if int(h) >= 0 && int(h) < len(hintNames) {
		return hintNames[h]
	}
	return fmt.Sprintf("hint(%d)", int(h))
}

// MarshalText encodes the hint by name
func (h TimeHint) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hint name
func (h *TimeHint) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeHint(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseTimeHint parses a hint name. The empty string is HintNone, and the
// "verify_" prefix used by older configuration files is accepted.
func ParseTimeHint(s string) (TimeHint, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "verify_")
	if name == "" {
		return HintNone, nil
	}
	for i, candidate := range hintNames {
		if candidate == name {
			return TimeHint(i), nil
		}
	}
	return HintNone, fmt.Errorf("invalid time hint: %q (must be one of %s)", s, strings.Join(hintNames, ", "))
}

// ValidTimeHint reports whether s names a hint
func ValidTimeHint(s string) bool {
	_, err := ParseTimeHint(s)
	return err == nil
}

// normalized folds the aliases of HintEnd into HintEnd
func (h TimeHint) normalized() TimeHint {
	switch h {
	case HintThen, HintStill:
		return HintEnd
	default:
		return h
	}
}

// expected returns how many datetimes the hint looks for
func (h TimeHint) expected() int {
	switch h.normalized() {
	case HintStart, HintBoth:
		return 2
	case HintEnd:
		return 1
	default:
		return 0
	}
}
