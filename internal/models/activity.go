package models

import (
	"strings"

	"github.com/google/uuid"
)

// Category groups activities
type Category struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Deleted bool      `json:"deleted"`
	Hidden  bool      `json:"hidden"`
}

// Activity is what a fact records time against
type Activity struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category *Category `json:"category,omitempty"`
	Deleted  bool      `json:"deleted"`
	Hidden   bool      `json:"hidden"`
}

// Tag labels a fact
type Tag struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Deleted bool      `json:"deleted"`
	Hidden  bool      `json:"hidden"`
}

// NewActivity creates an unpersisted activity. An empty category name means no category.
func NewActivity(name, categoryName string) *Activity {
	activity := &Activity{Name: strings.TrimSpace(name)}
	if categoryName = strings.TrimSpace(categoryName); categoryName != "" {
		activity.Category = &Category{Name: categoryName}
	}
	return activity
}

// CategoryName returns the category name or an empty string.
func (a *Activity) CategoryName() string {
	if a == nil || a.Category == nil {
		return ""
	}
	return a.Category.Name
}

// Copy returns a deep copy of the activity and its category.
func (a *Activity) Copy() *Activity {
	if a == nil {
		return nil
	}
	activity := *a
	if a.Category != nil {
		category := *a.Category
		activity.Category = &category
	}
	return &activity
}
