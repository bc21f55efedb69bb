// Package models defines the domain types for Vigor.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day key format used for entry dates.
const DateLayout = "2006-01-02"

// Goal periods.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Resource names, used in cache keys, tags and change events.
const (
	ResourceCategories = "categories"
	ResourceGoals      = "goals"
	ResourceEntries    = "entries"
)

// Category groups entries and goals, e.g. "faith" or "fitness".
type Category struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Enabled   bool      `json:"enabled"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityID implements normstore.Entity.
func (c Category) EntityID() string { return c.ID }

// Validate checks the category fields.
func (c Category) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.Color, validation.Length(0, 32)),
	)
}

// Goal is a target amount of a metric within a category over a period.
type Goal struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	CategoryID string          `json:"category_id"`
	MetricID   string          `json:"metric_id"`
	Target     decimal.Decimal `json:"target"`
	Period     string          `json:"period"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EntityID implements normstore.Entity.
func (g Goal) EntityID() string { return g.ID }

// Validate checks the goal fields.
func (g Goal) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.ID, validation.Required),
		validation.Field(&g.UserID, validation.Required),
		validation.Field(&g.CategoryID, validation.Required),
		validation.Field(&g.MetricID, validation.Required, validation.Length(1, 64)),
		validation.Field(&g.Target, validation.By(positive)),
		validation.Field(&g.Period, validation.Required, validation.In(PeriodDaily, PeriodWeekly, PeriodMonthly)),
	)
}

// Entry is one recorded activity.
type Entry struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	CategoryID string          `json:"category_id"`
	MetricID   string          `json:"metric_id,omitempty"`
	Value      decimal.Decimal `json:"value"`
	Date       time.Time       `json:"date"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EntityID implements normstore.Entity.
func (e Entry) EntityID() string { return e.ID }

// DateKey returns the calendar day of the entry in the entry's own location.
func (e Entry) DateKey() string { return e.Date.Format(DateLayout) }

// Validate checks the entry fields.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.UserID, validation.Required),
		validation.Field(&e.CategoryID, validation.Required),
		validation.Field(&e.Value, validation.By(nonNegative)),
		validation.Field(&e.Date, validation.Required),
		validation.Field(&e.Note, validation.Length(0, 2000)),
	)
}

// NewID returns a fresh entity id.
func NewID() string { return uuid.NewString() }

// ParseDate accepts either a calendar day (2006-01-02) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// Tag returns the cache invalidation tag for a resource of a user.
func Tag(resource, userID string) string {
	return resource + ":" + userID
}

func positive(v any) error {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func nonNegative(v any) error {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// Change kinds.
const (
	ChangeCreated  = "created"
	ChangeUpdated  = "updated"
	ChangeDeleted  = "deleted"
	ChangeImported = "imported"
)

// Change describes a mutation of one resource of a user. ID is empty for bulk changes.
type Change struct {
	Resource string `json:"resource"`
	Kind     string `json:"kind"`
	UserID   string `json:"user_id"`
	ID       string `json:"id,omitempty"`
}

// Tag returns the invalidation tag of the changed resource.
func (c Change) Tag() string { return Tag(c.Resource, c.UserID) }
