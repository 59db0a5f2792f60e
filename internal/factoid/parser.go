// Package factoid turns a loosely structured line of text into the parts of a fact.
//
// A factoid reads, in order: zero, one or two datetimes, an activity name,
// an "@" followed by an optional category, tags introduced by a tag stamp,
// and a free-text description:
//
//	12:00 - 14:00 foo@bar #baz #qux, rumpelratz
//
// The caller states through a TimeHint how many datetimes to expect.
package factoid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/timeexpr"
)

// Result is the outcome of parsing one factoid
type Result struct {
	Hint        TimeHint        `json:"hint"`
	Start       *timeexpr.Spec  `json:"start,omitempty"`
	End         *timeexpr.Spec  `json:"end,omitempty"`
	Activity    string          `json:"activity"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags"`
	Description string          `json:"description,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// StartTime returns the resolved start, if any
func (r *Result) StartTime() *time.Time {
	return specTime(r.Start)
}

// EndTime returns the resolved end, if any
func (r *Result) EndTime() *time.Time {
	return specTime(r.End)
}

// Deferred reports whether a time is waiting for ResolveDeferred
func (r *Result) Deferred() bool {
	return (r.Start != nil && !r.Start.Resolved()) || (r.End != nil && !r.End.Resolved())
}

// Fact builds an unpersisted fact from the result
func (r *Result) Fact() *models.Fact {
	return models.NewFact(
		models.NewActivity(r.Activity, r.Category),
		r.StartTime(),
		r.EndTime(),
		r.Description,
		r.Tags...,
	)
}

// Parser parses factoids. It holds only configuration and is safe for concurrent use.
type Parser struct {
	opts        Options
	interpreter *timeexpr.Interpreter
	rangeLead   *regexp.Regexp
	rangeSplit  *regexp.Regexp
}

// New creates a parser
func New(opts ...Option) *Parser {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o = o.withDefaults()

	interpreterOpts := []timeexpr.Option{
		timeexpr.WithLocation(o.Location),
		timeexpr.WithNow(o.Now),
		timeexpr.WithSkipResolution(o.SkipResolution),
	}
	if o.Fallback != nil {
		interpreterOpts = append(interpreterOpts, timeexpr.WithFallback(o.Fallback))
	}

	lead, split := rangePatterns(o.RangeSeparators)
	return &Parser{
		opts:        o,
		interpreter: timeexpr.New(interpreterOpts...),
		rangeLead:   lead,
		rangeSplit:  split,
	}
}

// Parse parses raw with a parser built from opts
func Parse(raw string, hint TimeHint, opts ...Option) (*Result, error) {
	return New(opts...).Parse(raw, hint)
}

// parseContext is the per-call input threaded through each stage. Stages
// read it and return their findings; nothing in it changes after creation.
type parseContext struct {
	hint TimeHint
	flat string
	more string
}

func newParseContext(raw string, hint TimeHint) parseContext {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	flat, more, _ := strings.Cut(raw, "\n")
	return parseContext{hint: hint.normalized(), flat: flat, more: strings.TrimSpace(more)}
}

// datetimes holds the time expressions found in a factoid
type datetimes struct {
	start *timeexpr.Spec
	end   *timeexpr.Spec
}

// activityRegion is what follows the datetimes: the activity name and the
// text after the "@", if one was found
type activityRegion struct {
	activity     string
	rest         string
	hasSeparator bool
}

// Parse parses one factoid. Without the lenient option a failed parse
// returns a nil result; with it, the partial result comes back with the error.
func (p *Parser) Parse(raw string, hint TimeHint) (*Result, error) {
	pc := newParseContext(raw, hint)
	result := &Result{Hint: hint, Tags: []string{}}

	if err := p.parse(pc, result); err != nil {
		if p.opts.Lenient {
			return result, err
		}
		return nil, err
	}
	return result, nil
}

func (p *Parser) parse(pc parseContext, result *Result) error {
	times, rest, err := p.leadingDatetimes(pc)
	var region activityRegion
	if err == nil {
		region = p.splitActivity(rest)
	} else {
		times, region, err = p.delimitedDatetimes(pc)
		if err != nil {
			return err
		}
	}

	result.Start, result.End = times.start, times.end
	result.Activity = region.activity

	var description string
	if region.hasSeparator {
		result.Category, result.Tags, description = p.categoryAndRemainder(region.rest)
	} else {
		result.Tags, description = p.tagsAndRemainder(region.rest)
	}
	result.Description = joinDescription(description, pc.more)

	if !p.opts.SkipResolution {
		p.hydrate(pc.hint, result, p.interpreter.Now())
	}

	if result.Activity == "" {
		return newParseError(ErrMissingActivity, "", nil)
	}
	return nil
}

// leadingDatetimes is the fast path: machine-readable datetimes at the
// front of the line, as many as the hint asks for.
func (p *Parser) leadingDatetimes(pc parseContext) (datetimes, string, error) {
	var times datetimes
	rest := pc.flat

	switch pc.hint {
	case HintNone, HintAfter:
		return times, rest, nil

	case HintEnd:
		spec, after, ok := p.interpreter.Discern(rest)
		if !ok {
			return times, pc.flat, newParseError(ErrMissingDatetimeTwo, "", nil)
		}
		times.end = spec
		return times, trimLeadingItem(after, p.opts.ItemSeparators), nil

	default:
		spec, after, ok := p.interpreter.Discern(rest)
		if !ok {
			return times, pc.flat, newParseError(ErrMissingDatetimeOne, "", nil)
		}
		times.start = spec
		rest = after

		sep := p.rangeLead.FindString(rest)
		if sep == "" {
			if pc.hint == HintBoth {
				return times, pc.flat, p.missingSecond(nil)
			}
			return times, trimLeadingItem(rest, p.opts.ItemSeparators), nil
		}

		spec, after, ok = p.interpreter.Discern(rest[len(sep):])
		if !ok {
			if pc.hint == HintBoth {
				return times, pc.flat, p.missingSecond(nil)
			}
			end, endRest, err := p.interpreter.Lead(rest[len(sep):])
			if err != nil {
				// the separator is part of the activity: "12:00 - review@work"
				return times, trimLeadingItem(rest, p.opts.ItemSeparators), nil
			}
			spec, after = end, endRest
		}
		times.end = spec
		return times, trimLeadingItem(after, p.opts.ItemSeparators), nil
	}
}

// delimitedDatetimes is the hard path for datetimes that are not machine
// readable. The "@" bounds the region holding datetimes and activity.
func (p *Parser) delimitedDatetimes(pc parseContext) (datetimes, activityRegion, error) {
	var times datetimes
	at := indexUnescaped(pc.flat, '@')
	if at < 0 {
		return times, activityRegion{}, newParseError(ErrMissingSeparatorActivity, "", nil)
	}
	before, after := pc.flat[:at], pc.flat[at+1:]
	expectTwo := pc.hint.expected() == 2
	strictlyTwo := pc.hint == HintBoth

	var activity string
	if dtText, actText, found := splitItem(before, p.opts.ItemSeparators); found {
		// "yesterday 3pm to 5pm, activity@category": the datetimes are delimited
		raw1, raw2 := "", ""
		if expectTwo {
			if loc := p.rangeSplit.FindStringIndex(dtText); loc != nil {
				raw1, raw2 = dtText[:loc[0]], dtText[loc[1]:]
			} else if strictlyTwo {
				return times, activityRegion{}, p.missingSecond(nil)
			}
		}
		if raw1 == "" && raw2 == "" {
			if pc.hint == HintEnd {
				raw2 = dtText
			} else {
				raw1 = dtText
			}
		}
		var err error
		if raw1 != "" {
			if times.start, err = p.interpreter.Interpret(raw1); err != nil {
				return times, activityRegion{}, newParseError(ErrMissingDatetimeOne, "", err)
			}
		}
		if raw2 != "" {
			if times.end, err = p.interpreter.Interpret(raw2); err != nil {
				return times, activityRegion{}, p.missingSecond(err)
			}
		}
		activity = actText
	} else {
		// "yesterday 3pm to 17:00 activity@category": the last datetime runs into the activity
		dtAndAct := before
		toEnd := pc.hint == HintEnd
		if expectTwo {
			if loc := p.rangeSplit.FindStringIndex(before); loc != nil {
				start, err := p.interpreter.Interpret(before[:loc[0]])
				if err != nil {
					return times, activityRegion{}, newParseError(ErrMissingDatetimeOne, "", err)
				}
				times.start = start
				dtAndAct = before[loc[1]:]
				toEnd = true
			} else if strictlyTwo {
				return times, activityRegion{}, p.missingSecond(nil)
			}
		}
		spec, rest, err := p.interpreter.Lead(dtAndAct)
		if err != nil && times.start != nil && !strictlyTwo {
			// no end after the separator, so only the start is a datetime
			times.start, toEnd = nil, false
			spec, rest, err = p.interpreter.Lead(before)
		}
		if err != nil {
			if toEnd {
				return times, activityRegion{}, p.missingSecond(err)
			}
			return times, activityRegion{}, newParseError(ErrMissingDatetimeOne, "", err)
		}
		if toEnd {
			times.end = spec
		} else {
			times.start = spec
		}
		activity = trimLeadingItem(rest, p.opts.ItemSeparators)
	}

	return times, activityRegion{
		activity:     unescapeAt(strings.TrimSpace(activity)),
		rest:         after,
		hasSeparator: true,
	}, nil
}

func (p *Parser) missingSecond(cause error) *ParseError {
	message := fmt.Sprintf("expected to find the two datetimes separated by one of: %s",
		strings.Join(p.opts.RangeSeparators, ", "))
	return newParseError(ErrMissingDatetimeTwo, message, cause)
}

// splitActivity takes the activity name up to the first unescaped "@"
func (p *Parser) splitActivity(s string) activityRegion {
	at := indexUnescaped(s, '@')
	if at < 0 {
		return activityRegion{rest: s}
	}
	return activityRegion{
		activity:     unescapeAt(strings.TrimSpace(s[:at])),
		rest:         s[at+1:],
		hasSeparator: true,
	}
}

// categoryAndRemainder reads "category #tag #tag, description" or
// "category: #tag #tag: description"
func (p *Parser) categoryAndRemainder(s string) (category string, tags []string, description string) {
	head, tail, found := splitItem(s, p.opts.ItemSeparators)
	category, tagText := splitCategoryTags(head, p.opts.TagStamps)
	if found {
		switch {
		case startsWithTag(tail, p.opts.TagStamps):
			more, rest, _ := splitItem(tail, p.opts.ItemSeparators)
			tagText += " " + more
			description = rest
		case startsWithItem(tail, p.opts.ItemSeparators):
			// an empty tag group: "foo@bar: : #1 priority"
			_, description, _ = splitItem(tail, p.opts.ItemSeparators)
		default:
			description = tail
		}
	}
	return category, splitTags(tagText, p.opts.TagStamps), strings.TrimSpace(description)
}

// tagsAndRemainder reads "#tag #tag, description" or just a description
func (p *Parser) tagsAndRemainder(s string) (tags []string, description string) {
	head, tail, _ := splitItem(s, p.opts.ItemSeparators)
	if startsWithTag(head, p.opts.TagStamps) {
		return splitTags(head, p.opts.TagStamps), strings.TrimSpace(tail)
	}
	return []string{}, strings.TrimSpace(s)
}

// hydrate resolves the recognized datetimes to instants, with base as
// "now", and collects warnings. A clock time borrows its date from the other
// datetime when that one has an explicit date. A clock end before its start
// moves to the next day.
func (p *Parser) hydrate(hint TimeHint, result *Result, base time.Time) {
	if hint == HintAfter && result.Start == nil {
		now := base
		result.Start = &timeexpr.Spec{Kind: timeexpr.RelativeOffset, Time: &now, HasTimeOfDay: true}
	}

	start, end := result.Start, result.End
	if start != nil && !start.Resolved() && !start.Deferred {
		var companion *time.Time
		if end.HasDate() {
			companion = end.Time
		}
		if t, err := p.interpreter.ResolveAt(start, companion, base); err == nil {
			start.Time = &t
		}
	}
	if end != nil && !end.Resolved() && !end.Deferred {
		if t, err := p.interpreter.ResolveAt(end, start.Instant(), base); err == nil {
			if end.Kind == timeexpr.ClockTime && start.Resolved() && t.Before(*start.Time) {
				t = t.AddDate(0, 0, 1)
			}
			end.Time = &t
		}
	}

	result.Warnings = nil
	for _, spec := range []*timeexpr.Spec{start, end} {
		if spec != nil && spec.Warning != "" {
			result.Warnings = append(result.Warnings, spec.Warning)
		}
	}
}

// ResolveDeferred finishes a result parsed with the skip-resolution option.
// Natural-language, relative and clock times are resolved with base as "now".
func (p *Parser) ResolveDeferred(result *Result, base time.Time) error {
	var err error
	if result.Start, err = p.interpreter.ResolveDeferred(result.Start, base); err != nil {
		return newParseError(ErrMissingDatetimeOne, "", err)
	}
	if result.End, err = p.interpreter.ResolveDeferred(result.End, base); err != nil {
		return p.missingSecond(err)
	}
	p.hydrate(result.Hint.normalized(), result, base.In(p.interpreter.Location()).Truncate(time.Second))
	return nil
}

func joinDescription(description, more string) string {
	description = strings.TrimSpace(description)
	if more == "" {
		return description
	}
	if description == "" {
		return more
	}
	return description + "\n" + more
}

func specTime(spec *timeexpr.Spec) *time.Time {
	if spec == nil || spec.Time == nil {
		return nil
	}
	t := *spec.Time
	return &t
}
