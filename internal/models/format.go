package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout used when a fact is written back out as a factoid
const TimestampLayout = "2006-01-02 15:04:05"

// Duration styles accepted by FormatDelta
const (
	DeltaStyleMinutes      = "%M"
	DeltaStyleHoursMinutes = "%H:%M"
	DeltaStyleWords        = "HHhMMm"
	DeltaStylePedantic     = ""
)

// SerializedString returns the canonical factoid for the fact. Parsing it again
// with both times expected yields a fact with equal fields.
func (f *Fact) SerializedString() string {
	var b strings.Builder
	if f.Start != nil {
		b.WriteString(f.Start.Format(TimestampLayout))
		if f.End != nil {
			b.WriteString(" to ")
			b.WriteString(f.End.Format(TimestampLayout))
		}
		b.WriteString(" ")
	}
	b.WriteString(escapeAt(f.ActivityName()))
	b.WriteString("@")
	b.WriteString(f.CategoryName())

	if tags := f.TagNames(); len(tags) > 0 {
		b.WriteString(": #")
		b.WriteString(strings.Join(tags, " #"))
	} else if needsEmptyTagGroup(f.Description) {
		// "#1 priority" would read back as a tag
		b.WriteString(": ")
	}
	if f.Description != "" {
		b.WriteString(": ")
		b.WriteString(f.Description)
	}
	return b.String()
}

func needsEmptyTagGroup(description string) bool {
	return strings.HasPrefix(description, "#") ||
		strings.HasPrefix(description, ":") ||
		strings.HasPrefix(description, ",")
}

// String returns a friendly single-line representation
func (f *Fact) String() string {
	var b strings.Builder
	b.WriteString(f.ActivityName())
	if category := f.CategoryName(); category != "" {
		b.WriteString("@")
		b.WriteString(category)
	}
	for _, tag := range f.TagNames() {
		b.WriteString(" #")
		b.WriteString(tag)
	}
	if f.Description != "" {
		b.WriteString(", ")
		b.WriteString(f.Description)
	}
	switch {
	case f.Start != nil && f.End != nil:
		return fmt.Sprintf("%s to %s %s", f.Start.Format(TimestampLayout), f.End.Format(TimestampLayout), b.String())
	case f.Start != nil:
		return fmt.Sprintf("%s %s", f.Start.Format(TimestampLayout), b.String())
	default:
		return b.String()
	}
}

// FormatDelta renders a duration in one of the supported styles
func FormatDelta(d time.Duration, style string) (string, error) {
	seconds := d.Seconds()
	hours := int(seconds / 3600)
	minutes := int(d/time.Minute) % 60

	switch style {
	case DeltaStyleMinutes:
		return fmt.Sprintf("%d", minutes), nil
	case DeltaStyleHoursMinutes:
		return fmt.Sprintf("%02d:%02d", hours, minutes), nil
	case DeltaStyleWords:
		hourUnit, minuteUnit := "hours", "minutes"
		if hours == 1 {
			hourUnit = "hour "
		}
		if minutes == 1 {
			minuteUnit = "minute "
		}
		return fmt.Sprintf("%2d %s %2d %s", hours, hourUnit, minutes, minuteUnit), nil
	case DeltaStylePedantic:
		return formatPedantic(seconds), nil
	default:
		return "", fmt.Errorf("unknown duration style %q", style)
	}
}

var pedanticScales = []struct {
	seconds float64
	unit    string
}{
	{365.2425 * 86400, "years"},
	{30.436875 * 86400, "months"},
	{7 * 86400, "weeks"},
	{86400, "days"},
	{3600, "hours"},
	{60, "mins."},
}

func formatPedantic(seconds float64) string {
	abs := seconds
	if abs < 0 {
		abs = -abs
	}
	for _, scale := range pedanticScales {
		if abs >= scale.seconds {
			return fmt.Sprintf("%.2f %s", seconds/scale.seconds, scale.unit)
		}
	}
	return fmt.Sprintf("%.2f secs.", seconds)
}

func escapeAt(s string) string {
	return strings.ReplaceAll(s, "@", `\@`)
}
