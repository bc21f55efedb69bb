package api

import (
	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/dashboard"
	"github.com/starford/vigor/internal/models"
)

// CategoryRequest is the request body for creating or updating a category.
type CategoryRequest struct {
	ID       string `json:"id,omitempty" example:"faith"`
	Name     string `json:"name" example:"Faith" validate:"required"`
	Color    string `json:"color,omitempty" example:"#7c3aed"`
	Enabled  *bool  `json:"enabled,omitempty" example:"true"`
	Position int    `json:"position" example:"0"`
}

func (r CategoryRequest) model() models.Category {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.Category{ID: r.ID, Name: r.Name, Color: r.Color, Enabled: enabled, Position: r.Position}
}

// GoalRequest is the request body for creating or updating a goal.
type GoalRequest struct {
	ID         string          `json:"id,omitempty"`
	CategoryID string          `json:"category_id" validate:"required"`
	MetricID   string          `json:"metric_id" example:"minutes" validate:"required"`
	Target     decimal.Decimal `json:"target" example:"30" validate:"required"`
	Period     string          `json:"period" example:"daily" validate:"required"`
}

func (r GoalRequest) model() models.Goal {
	return models.Goal{ID: r.ID, CategoryID: r.CategoryID, MetricID: r.MetricID, Target: r.Target, Period: r.Period}
}

// EntryRequest is the request body for creating or updating an entry.
// Date accepts YYYY-MM-DD or RFC 3339; empty means now.
type EntryRequest struct {
	ID         string          `json:"id,omitempty"`
	CategoryID string          `json:"category_id" validate:"required"`
	MetricID   string          `json:"metric_id,omitempty" example:"minutes"`
	Value      decimal.Decimal `json:"value" example:"20" validate:"required"`
	Date       string          `json:"date,omitempty" example:"2024-03-10"`
	Note       string          `json:"note,omitempty"`
}

// CategoryListResponse wraps category listings.
type CategoryListResponse struct {
	Categories []models.Category `json:"categories" validate:"required"`
}

// GoalListResponse wraps goal listings.
type GoalListResponse struct {
	Goals []models.Goal `json:"goals" validate:"required"`
}

// EntryListResponse wraps entry listings.
type EntryListResponse struct {
	Entries []models.Entry `json:"entries" validate:"required"`
}

// DashboardResponse is the dashboard summary (aliased from the domain layer).
type DashboardResponse = dashboard.Summary
