package review

import (
	"time"
)

// Permission codes guarding review periods
const (
	PermissionCreate = "create_review_period"
	PermissionEdit   = "edit_review_period"
	PermissionDelete = "delete_review_period"
	PermissionOpen   = "open_review_period"
	PermissionClose  = "close_review_period"
)

// Period statuses
const (
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)

// DateLayout is the wire format of period dates
const DateLayout = "2006-01-02"

// PeriodTypes lists the accepted period_type values
var PeriodTypes = []string{"Q1", "Q2", "Q3", "Q4", "Annual", "Mid-Year"}

// Period is a review window
type Period struct {
	ID              int64     `json:"id"`
	Name            string    `json:"period_name"`
	Type            string    `json:"period_type"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	FinancialPeriod *string   `json:"financial_period"`
	Description     *string   `json:"description"`
	Status          string    `json:"status"`
	IsActive        bool      `json:"is_active"`
	CreatedBy       *int64    `json:"created_by"`
	UpdatedBy       *int64    `json:"updated_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PeriodInput carries the writable period fields. On update nil fields are
// left unchanged.
type PeriodInput struct {
	Name            *string `json:"period_name"`
	Type            *string `json:"period_type"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	FinancialPeriod *string `json:"financial_period"`
	Description     *string `json:"description"`
	Status          *string `json:"status"`
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
