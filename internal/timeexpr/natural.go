package timeexpr

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Match is a time expression found by a Fallback
type Match struct {
	Text  string
	Index int
	Time  time.Time
}

// Fallback interprets text that is not in a machine-readable form.
// Recognize returns nil when nothing in text is a time expression.
type Fallback interface {
	Recognize(text string, base time.Time) (*Match, error)
}

// NaturalFallback understands English expressions such as "yesterday at 3pm"
// or "last friday 10:30". Results are relative to the base instant and its
// location, with no bias toward the future or the past.
type NaturalFallback struct {
	parser *when.Parser
}

// NewNaturalFallback creates the English natural-language fallback
func NewNaturalFallback() *NaturalFallback {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &NaturalFallback{parser: w}
}

// Recognize implements Fallback
func (f *NaturalFallback) Recognize(text string, base time.Time) (*Match, error) {
	result, err := f.parser.Parse(text, base)
	if err != nil {
		return nil, fmt.Errorf("failed to interpret %q: %w", text, err)
	}
	if result == nil {
		return nil, nil
	}
	return &Match{Text: result.Text, Index: result.Index, Time: result.Time}, nil
}

// FallbackFunc adapts a function to the Fallback interface
type FallbackFunc func(text string, base time.Time) (*Match, error)

// Recognize implements Fallback
func (f FallbackFunc) Recognize(text string, base time.Time) (*Match, error) {
	return f(text, base)
}
