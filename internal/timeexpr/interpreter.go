package timeexpr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrUnrecognized is returned when no interpretation of a fragment exists
	ErrUnrecognized = errors.New("unrecognized time expression")
	// ErrDeferred is returned when a deferred expression is resolved without a base instant
	ErrDeferred = errors.New("time expression resolution was deferred")
)

var (
	relativePattern = regexp.MustCompile(`^([+-])(?:(\d+)h)?(?:(\d+)m?)?`)
	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?`)
	absolutePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[ T](\d{2}):(\d{2})(?::(\d{2}))?)?(Z|[+-]\d{2}:\d{2})?`)
)

// Interpreter recognizes relative offsets, clock times and absolute
// date-times, deferring anything else to a Fallback.
// It is immutable after construction and safe for concurrent use.
type Interpreter struct {
	location       *time.Location
	now            func() time.Time
	fallback       Fallback
	skipResolution bool
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithLocation sets the location used for clock times and dates without a zone
func WithLocation(loc *time.Location) Option {
	return func(in *Interpreter) {
		if loc != nil {
			in.location = loc
		}
	}
}

// WithNow sets the clock used for "now"
func WithNow(now func() time.Time) Option {
	return func(in *Interpreter) {
		if now != nil {
			in.now = now
		}
	}
}

// WithFallback sets the interpreter used for text that is not machine readable
func WithFallback(fallback Fallback) Option {
	return func(in *Interpreter) {
		in.fallback = fallback
	}
}

// WithSkipResolution makes fallback matches come back unresolved, to be
// resolved later with ResolveDeferred.
func WithSkipResolution(skip bool) Option {
	return func(in *Interpreter) {
		in.skipResolution = skip
	}
}

// New creates an interpreter. Without options it uses the local timezone,
// the wall clock and the natural-language fallback.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.fallback == nil {
		in.fallback = NewNaturalFallback()
	}
	return in
}

// Location returns the interpreter's location
func (in *Interpreter) Location() *time.Location {
	return in.location
}

// Now returns the current instant in the interpreter's location, truncated to seconds
func (in *Interpreter) Now() time.Time {
	return in.now().In(in.location).Truncate(time.Second)
}

// Discern recognizes a relative offset, clock time or absolute date-time at
// the front of text and returns the remainder. Leading whitespace is skipped.
func (in *Interpreter) Discern(text string) (*Spec, string, bool) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	for _, recognize := range []func(string) (*Spec, int){
		in.recognizeRelative,
		in.recognizeClock,
		in.recognizeAbsolute,
	} {
		spec, n := recognize(trimmed)
		if spec == nil || !atBoundary(trimmed[n:]) {
			continue
		}
		return spec, trimmed[n:], true
	}
	return nil, text, false
}

// Interpret recognizes a whole fragment. Machine-readable forms are tried
// first, then the fallback, whose match must cover the entire fragment.
func (in *Interpreter) Interpret(text string) (*Spec, error) {
	fragment := strings.TrimSpace(text)
	if fragment == "" {
		return nil, ErrUnrecognized
	}
	if spec, rest, ok := in.Discern(fragment); ok && strings.TrimSpace(rest) == "" {
		return spec, nil
	}
	if in.fallback == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, fragment)
	}
	match, err := in.fallback.Recognize(fragment, in.Now())
	if err != nil {
		return nil, err
	}
	if match == nil || match.Index != 0 || len(match.Text) > len(fragment) ||
		strings.TrimSpace(fragment[len(match.Text):]) != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, fragment)
	}
	return in.naturalSpec(fragment, match), nil
}

// Lead recognizes a time expression at the front of text, trying the
// machine-readable forms first and then a fallback match anchored at the
// start. It returns the remainder after the expression.
func (in *Interpreter) Lead(text string) (*Spec, string, error) {
	if spec, rest, ok := in.Discern(text); ok {
		return spec, rest, nil
	}
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if trimmed == "" || in.fallback == nil {
		return nil, text, fmt.Errorf("%w: %q", ErrUnrecognized, trimmed)
	}
	match, err := in.fallback.Recognize(trimmed, in.Now())
	if err != nil {
		return nil, text, err
	}
	if match == nil || match.Index != 0 || len(match.Text) > len(trimmed) {
		return nil, text, fmt.Errorf("%w: %q", ErrUnrecognized, trimmed)
	}
	rest := trimmed[len(match.Text):]
	if !atBoundary(rest) {
		return nil, text, fmt.Errorf("%w: %q", ErrUnrecognized, trimmed)
	}
	return in.naturalSpec(match.Text, match), rest, nil
}

func (in *Interpreter) naturalSpec(raw string, match *Match) *Spec {
	spec := &Spec{Kind: NaturalLanguage, Raw: raw, HasTimeOfDay: true}
	if in.skipResolution {
		spec.Deferred = true
		return spec
	}
	t := match.Time.In(in.location)
	spec.Time = &t
	return spec
}

// Resolve returns the instant a spec stands for. Clock times take their date
// from companion when given, otherwise from today.
func (in *Interpreter) Resolve(spec *Spec, companion *time.Time) (time.Time, error) {
	return in.ResolveAt(spec, companion, in.Now())
}

// ResolveAt is Resolve with base standing in for "now"
func (in *Interpreter) ResolveAt(spec *Spec, companion *time.Time, base time.Time) (time.Time, error) {
	if spec == nil {
		return time.Time{}, ErrUnrecognized
	}
	switch spec.Kind {
	case RelativeOffset:
		return base.Add(spec.Offset), nil
	case ClockTime:
		day := base.In(in.location)
		if companion != nil {
			day = companion.In(in.location)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), spec.Hour, spec.Minute, spec.Second, 0, in.location), nil
	case AbsoluteDateTime, NaturalLanguage:
		if spec.Time == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrDeferred, spec.Raw)
		}
		return *spec.Time, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, spec.Raw)
	}
}

// ResolveDeferred resolves a deferred natural-language spec against base.
// Specs that are not deferred are returned unchanged.
func (in *Interpreter) ResolveDeferred(spec *Spec, base time.Time) (*Spec, error) {
	if spec == nil || !spec.Deferred {
		return spec, nil
	}
	if in.fallback == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, spec.Raw)
	}
	match, err := in.fallback.Recognize(spec.Raw, base.In(in.location))
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, spec.Raw)
	}
	resolved := *spec
	t := match.Time.In(in.location)
	resolved.Time = &t
	resolved.Deferred = false
	return &resolved, nil
}

func (in *Interpreter) recognizeRelative(text string) (*Spec, int) {
	m := relativePattern.FindStringSubmatch(text)
	if m == nil || (m[2] == "" && m[3] == "") {
		return nil, 0
	}
	hours, _ := strconv.Atoi(orZero(m[2]))
	minutes, _ := strconv.Atoi(orZero(m[3]))
	offset := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if m[1] == "-" {
		offset = -offset
	}
	return &Spec{Kind: RelativeOffset, Raw: m[0], Offset: offset, HasTimeOfDay: true}, len(m[0])
}

func (in *Interpreter) recognizeClock(text string) (*Spec, int) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, 0
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(orZero(m[3]))
	if hour > 23 || minute > 59 || second > 59 {
		return nil, 0
	}
	return &Spec{
		Kind:         ClockTime,
		Raw:          m[0],
		Hour:         hour,
		Minute:       minute,
		Second:       second,
		HasTimeOfDay: true,
	}, len(m[0])
}

func (in *Interpreter) recognizeAbsolute(text string) (*Spec, int) {
	m := absolutePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, 0
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(orZero(m[4]))
	minute, _ := strconv.Atoi(orZero(m[5]))
	second, _ := strconv.Atoi(orZero(m[6]))
	if month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return nil, 0
	}

	loc := in.location
	if zone := m[7]; zone != "" {
		parsed, err := time.Parse("Z07:00", zone)
		if err != nil {
			return nil, 0
		}
		loc = parsed.Location()
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Day() != day {
		return nil, 0
	}

	spec := &Spec{Kind: AbsoluteDateTime, Raw: m[0], Time: &t, HasTimeOfDay: m[4] != ""}
	if !spec.HasTimeOfDay {
		spec.Warning = MissingTimeOfDayWarning
	}
	return spec, len(m[0])
}

// atBoundary reports whether a recognized token ends where rest begins:
// at the end of input, whitespace or punctuation.
func atBoundary(rest string) bool {
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
