package factoid

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeexpr"
	"github.com/google/go-cmp/cmp"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// stubFallback understands "yesterday" (08:00 the day before base) and
// "an hour ago", anchored at the front of the text.
var stubFallback = timeexpr.FallbackFunc(func(text string, base time.Time) (*timeexpr.Match, error) {
	switch {
	case strings.HasPrefix(text, "yesterday"):
		day := base.AddDate(0, 0, -1)
		return &timeexpr.Match{Text: "yesterday", Time: time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, base.Location())}, nil
	case strings.HasPrefix(text, "an hour ago"):
		return &timeexpr.Match{Text: "an hour ago", Time: base.Add(-time.Hour)}, nil
	default:
		return nil, nil
	}
})

func testParser(opts ...Option) *Parser {
	base := []Option{
		WithLocation(time.UTC),
		WithNow(func() time.Time { return testNow }),
		WithFallback(stubFallback),
	}
	return New(append(base, opts...)...)
}

func at(hour, minute, second int) *time.Time {
	t := time.Date(2024, 3, 15, hour, minute, second, 0, time.UTC)
	return &t
}

type parsedFields struct {
	Start       *time.Time
	End         *time.Time
	Activity    string
	Category    string
	Tags        []string
	Description string
}

func fieldsOf(r *Result) parsedFields {
	return parsedFields{
		Start:       r.StartTime(),
		End:         r.EndTime(),
		Activity:    r.Activity,
		Category:    r.Category,
		Tags:        r.Tags,
		Description: r.Description,
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	yesterday8 := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)
	yesterday9 := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	sevenAgo := testNow.Add(-7 * time.Minute)
	nextDay1 := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	newYear18 := time.Date(2016, 1, 1, 18, 0, 0, 0, time.UTC)
	newYear19 := time.Date(2016, 1, 1, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		hint     TimeHint
		opts     []Option
		expected parsedFields
	}{
		{
			name:  "times, category, inline tags and description",
			input: "12:00 - 14:00 foo@bar #baz #qux, rumpelratz",
			hint:  HintBoth,
			expected: parsedFields{
				Start: at(12, 0, 0), End: at(14, 0, 0),
				Activity: "foo", Category: "bar", Tags: []string{"baz", "qux"}, Description: "rumpelratz",
			},
		},
		{
			name:     "description only",
			input:    "12:00 - 14:00 foo@bar, rumpelratz",
			hint:     HintBoth,
			expected: parsedFields{Start: at(12, 0, 0), End: at(14, 0, 0), Activity: "foo", Category: "bar", Tags: []string{}, Description: "rumpelratz"},
		},
		{
			name:     "no hint",
			input:    "foo@bar",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "dash without spaces",
			input:    "12:00-14:00 foo@bar",
			hint:     HintBoth,
			expected: parsedFields{Start: at(12, 0, 0), End: at(14, 0, 0), Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "seconds are kept",
			input:    "12:00:11 - 14:00:59 baz@bat",
			hint:     HintBoth,
			expected: parsedFields{Start: at(12, 0, 11), End: at(14, 0, 59), Activity: "baz", Category: "bat", Tags: []string{}},
		},
		{
			name:     "relative offset is text without a hint",
			input:    "-7 foo@bar, palimpalum",
			hint:     HintNone,
			expected: parsedFields{Activity: "-7 foo", Category: "bar", Tags: []string{}, Description: "palimpalum"},
		},
		{
			name:     "relative offset as start",
			input:    "-7 foo@bar, palimpalum",
			hint:     HintStart,
			expected: parsedFields{Start: &sevenAgo, Activity: "foo", Category: "bar", Tags: []string{}, Description: "palimpalum"},
		},
		{
			name:     "canonical form",
			input:    "2016-01-01 18:00:00 to 2016-01-01 19:00:00 homework@school: #math #science: something clever ...",
			hint:     HintBoth,
			expected: parsedFields{Start: &newYear18, End: &newYear19, Activity: "homework", Category: "school", Tags: []string{"math", "science"}, Description: "something clever ..."},
		},
		{
			name:     "empty category",
			input:    "homework@: #math",
			hint:     HintNone,
			expected: parsedFields{Activity: "homework", Tags: []string{"math"}},
		},
		{
			name:     "tags with whitespace and duplicates",
			input:    "foo@bar #science #science fiction #science",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Category: "bar", Tags: []string{"science", "science fiction"}},
		},
		{
			name:     "hash inside a word is not a stamp",
			input:    "foo@c#sharp, notes",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Category: "c#sharp", Tags: []string{}, Description: "notes"},
		},
		{
			name:     "description continues on the next lines",
			input:    "foo@bar, first line\nsecond line\nthird",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Category: "bar", Tags: []string{}, Description: "first line\nsecond line\nthird"},
		},
		{
			name:     "later separators belong to the description",
			input:    "foo@bar, one: two, three",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Category: "bar", Tags: []string{}, Description: "one: two, three"},
		},
		{
			name:     "end only",
			input:    "14:00 foo@bar",
			hint:     HintEnd,
			expected: parsedFields{End: at(14, 0, 0), Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "then behaves like end",
			input:    "14:00: foo@bar",
			hint:     HintThen,
			expected: parsedFields{End: at(14, 0, 0), Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "start without end",
			input:    "09:45 foo@bar",
			hint:     HintStart,
			expected: parsedFields{Start: at(9, 45, 0), Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "clock end before start moves to the next day",
			input:    "23:00 - 01:00 night@shift",
			hint:     HintBoth,
			expected: parsedFields{Start: at(23, 0, 0), End: &nextDay1, Activity: "night", Category: "shift", Tags: []string{}},
		},
		{
			name:     "start hint keeps a range word that is not followed by a time",
			input:    "12:00 to fix bug@work",
			hint:     HintStart,
			expected: parsedFields{Start: at(12, 0, 0), Activity: "to fix bug", Category: "work", Tags: []string{}},
		},
		{
			name:     "start hint keeps a dash that is not followed by a time",
			input:    "12:00 - review@work",
			hint:     HintStart,
			expected: parsedFields{Start: at(12, 0, 0), Activity: "- review", Category: "work", Tags: []string{}},
		},
		{
			name:     "start hint with a date and a range word in the activity",
			input:    "2024-03-15 12:00 until lunch@home",
			hint:     HintStart,
			expected: parsedFields{Start: at(12, 0, 0), Activity: "until lunch", Category: "home", Tags: []string{}},
		},
		{
			name:     "start hint still reads an end",
			input:    "12:00 to 13:15 review@work",
			hint:     HintStart,
			expected: parsedFields{Start: at(12, 0, 0), End: at(13, 15, 0), Activity: "review", Category: "work", Tags: []string{}},
		},
		{
			name:     "start hint with a natural end",
			input:    "09:00 to an hour ago review@work",
			hint:     HintStart,
			expected: parsedFields{Start: at(9, 0, 0), End: at(9, 30, 0), Activity: "review", Category: "work", Tags: []string{}},
		},
		{
			name:     "natural start with a range word in the activity",
			input:    "yesterday to fix bug@work",
			hint:     HintStart,
			expected: parsedFields{Start: &yesterday8, Activity: "to fix bug", Category: "work", Tags: []string{}},
		},
		{
			name:     "equal clocks do not roll over",
			input:    "12:00 - 12:00 foo@bar",
			hint:     HintBoth,
			expected: parsedFields{Start: at(12, 0, 0), End: at(12, 0, 0), Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "natural language start with clock end",
			input:    "yesterday to 09:00 foo@bar",
			hint:     HintBoth,
			expected: parsedFields{Start: &yesterday8, End: &yesterday9, Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "natural language start delimited by item separator",
			input:    "yesterday, foo@bar #baz",
			hint:     HintStart,
			expected: parsedFields{Start: &yesterday8, Activity: "foo", Category: "bar", Tags: []string{"baz"}},
		},
		{
			name:     "natural language end running into the activity",
			input:    "yesterday foo@bar",
			hint:     HintEnd,
			expected: parsedFields{End: &yesterday8, Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "escaped at sign",
			input:    `mail\@home@chores`,
			hint:     HintNone,
			expected: parsedFields{Activity: "mail@home", Category: "chores", Tags: []string{}},
		},
		{
			name:     "custom stamps and separators",
			input:    "10:00 until 11:00 foo@bar +baz; notes",
			hint:     HintBoth,
			opts:     []Option{WithTagStamps("+"), WithItemSeparators(";"), WithRangeSeparators("until")},
			expected: parsedFields{Start: at(10, 0, 0), End: at(11, 0, 0), Activity: "foo", Category: "bar", Tags: []string{"baz"}, Description: "notes"},
		},
		{
			name:     "after hint starts now",
			input:    "foo@bar",
			hint:     HintAfter,
			expected: parsedFields{Start: &testNow, Activity: "foo", Category: "bar", Tags: []string{}},
		},
		{
			name:     "tags without a category",
			input:    "foo@ #a #b, desc",
			hint:     HintNone,
			expected: parsedFields{Activity: "foo", Tags: []string{"a", "b"}, Description: "desc"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := testParser(tt.opts...).Parse(tt.input, tt.hint)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, fieldsOf(result)); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		hint        TimeHint
		expectError *ParseError
	}{
		{name: "missing activity", input: "12:00 - 14:00 foo", hint: HintBoth, expectError: ErrMissingActivity},
		{name: "time only", input: "13:01:22", hint: HintStart, expectError: ErrMissingActivity},
		{name: "missing second datetime", input: "12:00 foo@bar", hint: HintBoth, expectError: ErrMissingDatetimeTwo},
		{name: "both hint needs a time after the range word", input: "12:00 to fix bug@work", hint: HintBoth, expectError: ErrMissingDatetimeTwo},
		{name: "missing separator", input: "whenever foo", hint: HintStart, expectError: ErrMissingSeparatorActivity},
		{name: "unrecognized start", input: "whenever foo@bar", hint: HintStart, expectError: ErrMissingDatetimeOne},
		{name: "unrecognized end", input: "whenever foo@bar", hint: HintEnd, expectError: ErrMissingDatetimeTwo},
		{name: "unrecognized delimited end", input: "12:00 to whenever, foo@bar", hint: HintBoth, expectError: ErrMissingDatetimeTwo},
		{name: "no activity without hint", input: "just words", hint: HintNone, expectError: ErrMissingActivity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := testParser().Parse(tt.input, tt.hint)
			if !errors.Is(err, tt.expectError) {
				t.Fatalf("Expected error kind %s, got %v", tt.expectError.Kind, err)
			}
			if result != nil {
				t.Errorf("Expected nil result without lenient mode, got %+v", result)
			}
			kind, ok := KindOf(err)
			if !ok || kind != tt.expectError.Kind {
				t.Errorf("Expected KindOf to report %s, got %s", tt.expectError.Kind, kind)
			}
		})
	}
}

func TestParse_Lenient(t *testing.T) {
	t.Parallel()

	result, err := testParser(WithLenient(true)).Parse("12:00 - 14:00 foo", HintBoth)
	if !errors.Is(err, ErrMissingActivity) {
		t.Fatalf("Expected missing activity error, got %v", err)
	}
	if result == nil {
		t.Fatal("Expected a partial result in lenient mode")
	}
	if result.Activity != "" {
		t.Errorf("Expected no activity, got %q", result.Activity)
	}
	if result.Description != "foo" {
		t.Errorf("Expected description 'foo', got %q", result.Description)
	}
	if result.StartTime() == nil || !result.StartTime().Equal(*at(12, 0, 0)) {
		t.Errorf("Expected start 12:00, got %v", result.StartTime())
	}
}

func TestParse_Warnings(t *testing.T) {
	t.Parallel()

	result, err := testParser().Parse("2016-01-01 foo@bar", HintStart)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != timeexpr.MissingTimeOfDayWarning {
		t.Errorf("Expected the missing time of day warning, got %v", result.Warnings)
	}
}

func TestParse_SkipResolution(t *testing.T) {
	t.Parallel()

	p := testParser(WithSkipResolution(true))
	importTime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		input       string
		hint        TimeHint
		expectStart time.Time
		expectEnd   *time.Time
	}{
		{name: "natural language", input: "an hour ago foo@bar", hint: HintStart, expectStart: importTime.Add(-time.Hour)},
		{name: "relative offset", input: "-30 foo@bar", hint: HintStart, expectStart: importTime.Add(-30 * time.Minute)},
		{
			name:        "clock end follows deferred start",
			input:       "yesterday to 09:30 foo@bar",
			hint:        HintBoth,
			expectStart: time.Date(2020, 5, 31, 8, 0, 0, 0, time.UTC),
			expectEnd:   func() *time.Time { t := time.Date(2020, 5, 31, 9, 30, 0, 0, time.UTC); return &t }(),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := p.Parse(tt.input, tt.hint)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !result.Deferred() {
				t.Fatal("Expected the result to wait for resolution")
			}
			if err := p.ResolveDeferred(result, importTime); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result.Deferred() {
				t.Error("Expected every time to be resolved")
			}
			if got := result.StartTime(); got == nil || !got.Equal(tt.expectStart) {
				t.Errorf("Expected start %s, got %v", tt.expectStart, got)
			}
			if tt.expectEnd != nil {
				if got := result.EndTime(); got == nil || !got.Equal(*tt.expectEnd) {
					t.Errorf("Expected end %s, got %v", tt.expectEnd, got)
				}
			}
		})
	}
}

func TestParse_SerializedRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2016, 1, 1, 18, 0, 0, 0, time.UTC)
	end := time.Date(2016, 1, 1, 19, 30, 15, 0, time.UTC)

	facts := []*models.Fact{
		models.NewFact(models.NewActivity("homework", "school"), &start, &end, "something clever ...", "science", "math"),
		models.NewFact(models.NewActivity("homework", ""), &start, &end, "", "math"),
		models.NewFact(models.NewActivity("deep work", "day job"), &start, &end, "two\nlines"),
		models.NewFact(models.NewActivity("lunch", "break"), &start, &end, "", "with friends", "pizza"),
		models.NewFact(models.NewActivity("reading", ""), &start, &end, ""),
		models.NewFact(models.NewActivity("triage", "work"), &start, &end, "#1 priority"),
		models.NewFact(models.NewActivity("triage", "work"), &start, &end, ": leading separator"),
		models.NewFact(models.NewActivity("triage", "work"), &start, &end, "#1 priority", "urgent"),
	}

	for _, original := range facts {
		serialized := original.SerializedString()
		result, err := testParser().Parse(serialized, HintBoth)
		if err != nil {
			t.Errorf("Unexpected error parsing %q: %v", serialized, err)
			continue
		}
		if parsed := result.Fact(); !parsed.EqualFields(original) {
			t.Errorf("Expected %q to parse back to equal fields, got %s", serialized, parsed.SerializedString())
		}
	}
}

func TestParseTimeHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input       string
		expected    TimeHint
		expectError bool
	}{
		{input: "", expected: HintNone},
		{input: "both", expected: HintBoth},
		{input: "verify_start", expected: HintStart},
		{input: "STILL", expected: HintStill},
		{input: "sometimes", expectError: true},
	}

	for _, tt := range tests {
		got, err := ParseTimeHint(tt.input)
		if (err != nil) != tt.expectError {
			t.Errorf("ParseTimeHint(%q): expected error %v, got %v", tt.input, tt.expectError, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseTimeHint(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}
