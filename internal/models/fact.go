package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DirtyReason names a field changed by conflict resolution
type DirtyReason string

const (
	DirtyStart   DirtyReason = "start"
	DirtyEnd     DirtyReason = "end"
	DirtyDeleted DirtyReason = "deleted"
)

var (
	// ErrInvalidSpan is returned when a fact ends at or before its start
	ErrInvalidSpan = errors.New("fact end must be after its start")
	// ErrMissingActivityName is returned when a fact has no activity name
	ErrMissingActivityName = errors.New("fact requires an activity name")
	// ErrFactTooShort is returned when a fact is shorter than the configured minimum
	ErrFactTooShort = errors.New("fact is shorter than the minimum duration")
)

// Fact is a time-tracking record: an activity over a span of time.
// A nil End means the fact is still running.
type Fact struct {
	ID          uuid.UUID  `json:"id"`
	Activity    *Activity  `json:"activity"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []Tag      `json:"tags"`
	Deleted     bool       `json:"deleted"`
	SplitFrom   *uuid.UUID `json:"split_from,omitempty"`

	dirty map[DirtyReason]struct{}
}

// NewFact creates an unpersisted fact.
func NewFact(activity *Activity, start, end *time.Time, description string, tags ...string) *Fact {
	fact := &Fact{
		Activity:    activity,
		Start:       copyTime(start),
		End:         copyTime(end),
		Description: strings.TrimSpace(description),
	}
	for _, name := range tags {
		fact.AddTag(name)
	}
	return fact
}

// IsNew reports whether the fact has not been persisted yet
func (f *Fact) IsNew() bool {
	return f.ID == uuid.Nil
}

// ActivityName returns the activity name or an empty string
func (f *Fact) ActivityName() string {
	if f.Activity == nil {
		return ""
	}
	return f.Activity.Name
}

// CategoryName returns the category name or an empty string
func (f *Fact) CategoryName() string {
	return f.Activity.CategoryName()
}

// AddTag adds a tag by name. Blank names and duplicates are ignored.
func (f *Fact) AddTag(name string) {
	name = strings.TrimSpace(name)
	if name == "" || f.HasTag(name) {
		return
	}
	f.Tags = append(f.Tags, Tag{Name: name})
}

// HasTag reports whether the fact carries a tag with the given name
func (f *Fact) HasTag(name string) bool {
	for _, tag := range f.Tags {
		if tag.Name == name {
			return true
		}
	}
	return false
}

// TagNames returns the tag names sorted alphabetically
func (f *Fact) TagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for _, tag := range f.Tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return names
}

// SetStart changes the start and records the dirty reason
func (f *Fact) SetStart(start time.Time) {
	f.Start = &start
	f.MarkDirty(DirtyStart)
}

// SetEnd changes the end and records the dirty reason
func (f *Fact) SetEnd(end time.Time) {
	f.End = &end
	f.MarkDirty(DirtyEnd)
}

// MarkDeleted soft-deletes the fact and records the dirty reason
func (f *Fact) MarkDeleted() {
	f.Deleted = true
	f.MarkDirty(DirtyDeleted)
}

// MarkDirty records that a field was changed
func (f *Fact) MarkDirty(reason DirtyReason) {
	if f.dirty == nil {
		f.dirty = make(map[DirtyReason]struct{})
	}
	f.dirty[reason] = struct{}{}
}

// IsDirty reports whether the given field was changed
func (f *Fact) IsDirty(reason DirtyReason) bool {
	_, ok := f.dirty[reason]
	return ok
}

// DirtyReasons returns the changed fields in a stable order
func (f *Fact) DirtyReasons() []DirtyReason {
	reasons := make([]DirtyReason, 0, len(f.dirty))
	for reason := range f.dirty {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

// ClearDirty forgets all dirty reasons, after the edits were persisted
func (f *Fact) ClearDirty() {
	f.dirty = nil
}

// Copy returns a deep copy of the fact. Nothing is shared with the receiver.
func (f *Fact) Copy() *Fact {
	fact := &Fact{
		ID:          f.ID,
		Activity:    f.Activity.Copy(),
		Start:       copyTime(f.Start),
		End:         copyTime(f.End),
		Description: f.Description,
		Deleted:     f.Deleted,
	}
	if f.Tags != nil {
		fact.Tags = append([]Tag(nil), f.Tags...)
	}
	if f.SplitFrom != nil {
		splitFrom := *f.SplitFrom
		fact.SplitFrom = &splitFrom
	}
	for reason := range f.dirty {
		fact.MarkDirty(reason)
	}
	return fact
}

// Delta returns the duration of the fact. Ongoing facts are measured against now.
// A fact without a start has no duration.
func (f *Fact) Delta(now time.Time) (time.Duration, bool) {
	if f.Start == nil {
		return 0, false
	}
	if f.End == nil {
		return now.Sub(*f.Start), true
	}
	return f.End.Sub(*f.Start), true
}

// Validate checks the invariants of a fact that is about to be persisted
func (f *Fact) Validate(minDelta time.Duration) error {
	if strings.TrimSpace(f.ActivityName()) == "" {
		return ErrMissingActivityName
	}
	if f.Start == nil || f.End == nil {
		return nil
	}
	if !f.End.After(*f.Start) {
		return fmt.Errorf("%w: %s is not after %s", ErrInvalidSpan,
			f.End.Format(time.RFC3339), f.Start.Format(time.RFC3339))
	}
	if minDelta > 0 && f.End.Sub(*f.Start) < minDelta {
		return fmt.Errorf("%w: %s < %s", ErrFactTooShort, f.End.Sub(*f.Start), minDelta)
	}
	return nil
}

// EqualFields compares everything but identity, provenance and dirty state
func (f *Fact) EqualFields(other *Fact) bool {
	if other == nil {
		return false
	}
	if f.ActivityName() != other.ActivityName() || f.CategoryName() != other.CategoryName() {
		return false
	}
	if !equalTime(f.Start, other.Start) || !equalTime(f.End, other.End) {
		return false
	}
	if f.Description != other.Description || f.Deleted != other.Deleted {
		return false
	}
	ours, theirs := f.TagNames(), other.TagNames()
	if len(ours) != len(theirs) {
		return false
	}
	for i := range ours {
		if ours[i] != theirs[i] {
			return false
		}
	}
	return true
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
