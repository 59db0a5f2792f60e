package factoid

import (
	"time"

	"github.com/benvon/smart-timelog/internal/timeexpr"
)

var (
	// DefaultRangeSeparators separate a start from an end
	DefaultRangeSeparators = []string{"to", "until", "-"}
	// DefaultItemSeparators separate category, tags and description
	DefaultItemSeparators = []string{",", ":"}
	// DefaultTagStamps introduce a tag
	DefaultTagStamps = []string{"#"}
)

// Options configure a Parser
type Options struct {
	RangeSeparators []string
	ItemSeparators  []string
	TagStamps       []string
	Lenient         bool
	Location        *time.Location
	Now             func() time.Time
	Fallback        timeexpr.Fallback
	SkipResolution  bool
}

// Option mutates Options
type Option func(*Options)

func WithRangeSeparators(separators ...string) Option {
	return func(o *Options) { o.RangeSeparators = separators }
}

func WithItemSeparators(separators ...string) Option {
	return func(o *Options) { o.ItemSeparators = separators }
}

func WithTagStamps(stamps ...string) Option {
	return func(o *Options) { o.TagStamps = stamps }
}

// WithLenient returns parse errors alongside the partial result instead of a nil result
func WithLenient(lenient bool) Option {
	return func(o *Options) { o.Lenient = lenient }
}

// WithLocation sets the local timezone used for clock times and dates
func WithLocation(loc *time.Location) Option {
	return func(o *Options) { o.Location = loc }
}

func WithNow(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

func WithFallback(fallback timeexpr.Fallback) Option {
	return func(o *Options) { o.Fallback = fallback }
}

// WithSkipResolution leaves natural-language times unresolved. Resolve them
// later with Parser.ResolveDeferred.
func WithSkipResolution(skip bool) Option {
	return func(o *Options) { o.SkipResolution = skip }
}

func (o Options) withDefaults() Options {
	o.RangeSeparators = orDefault(o.RangeSeparators, DefaultRangeSeparators)
	o.ItemSeparators = orDefault(o.ItemSeparators, DefaultItemSeparators)
	o.TagStamps = orDefault(o.TagStamps, DefaultTagStamps)
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func orDefault(values, defaults []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
