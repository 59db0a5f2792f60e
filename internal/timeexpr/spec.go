// Package timeexpr recognizes the time expressions that may appear in a factoid.
package timeexpr

import (
	"fmt"
	"time"
)

// Kind classifies a recognized time expression
type Kind int

const (
	// Missing means no time expression was given
	Missing Kind = iota
	// AbsoluteDateTime is a machine-readable date, optionally with a time of day
	AbsoluteDateTime
	// ClockTime is a time of day whose date is inferred
	ClockTime
	// RelativeOffset is a signed offset from now
	RelativeOffset
	// NaturalLanguage is text understood by the fallback interpreter
	NaturalLanguage
)

var kindNames = map[Kind]string{
	Missing:          "missing",
	AbsoluteDateTime: "absolute",
	ClockTime:        "clock",
	RelativeOffset:   "relative",
	NaturalLanguage:  "natural",
}

// String returns the kind name
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown time expression kind %q", text)
}

// MissingTimeOfDayWarning is emitted for absolute dates without a time of day
const MissingTimeOfDayWarning = "The identified datetime is missing the time of day. Is that what you wanted?"

// Spec is one recognized time expression. Time is set once the expression
// has been resolved to an instant.
type Spec struct {
	Kind     Kind       `json:"kind"`
	Raw      string     `json:"raw"`
	Time     *time.Time `json:"time,omitempty"`
	Deferred bool       `json:"deferred,omitempty"`

	// Offset is set for relative offsets
	Offset time.Duration `json:"-"`
	// Hour, Minute and Second are set for clock times
	Hour   int `json:"-"`
	Minute int `json:"-"`
	Second int `json:"-"`

	HasTimeOfDay bool   `json:"-"`
	Warning      string `json:"-"`
}

// Resolved reports whether the spec carries an instant
func (s *Spec) Resolved() bool {
	return s != nil && s.Time != nil
}

// Instant returns the resolved instant or nil
func (s *Spec) Instant() *time.Time {
	if s == nil {
		return nil
	}
	return s.Time
}

// HasDate reports whether the expression pins a calendar date by itself
func (s *Spec) HasDate() bool {
	if s == nil {
		return false
	}
	switch s.Kind {
	case AbsoluteDateTime, NaturalLanguage:
		return s.Time != nil
	default:
		return false
	}
}
