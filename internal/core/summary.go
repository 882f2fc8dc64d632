package core

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500

	// TrendMonths is the window of the monthly trend view.
	TrendMonths = 12
)

// Filter narrows read-side views. Zero values mean "no constraint"; dates are
// inclusive.
type Filter struct {
	CategoryID int64
	From       Date
	To         Date
}

func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To.Time) {
		return Validationf("from_date must not be after to_date")
	}
	return nil
}

// Matches applies the filter to an active transaction.
func (f Filter) Matches(t Transaction) bool {
	if f.CategoryID != 0 && t.CategoryID != f.CategoryID {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	return true
}

// DateRange drops the category constraint.
func (f Filter) DateRange() Filter {
	return Filter{From: f.From, To: f.To}
}

type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and clamps the limit.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.Limit }

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(p PageRequest, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   Pagination    `json:"pagination"`
}

// Totals is the aggregate over a filtered active set.
type Totals struct {
	Credited Money
	Debited  Money
	Count    int
}

type SummaryView struct {
	TotalCredited     Money `json:"total_credited"`
	TotalDebited      Money `json:"total_debited"`
	Net               Money `json:"net"`
	TotalTransactions int   `json:"total_transactions"`
	CurrentBalance    Money `json:"current_balance"`
}

// NewSummaryView assembles the summary from filtered totals and the ledger
// balance.
func NewSummaryView(t Totals, balance Money) SummaryView {
	return SummaryView{
		TotalCredited:     t.Credited,
		TotalDebited:      t.Debited,
		Net:               t.Credited.Sub(t.Debited),
		TotalTransactions: t.Count,
		CurrentBalance:    balance,
	}
}

type CategorySpending struct {
	CategoryID       int64  `json:"category_id"`
	Name             string `json:"name"`
	Color            string `json:"color"`
	TotalSpent       Money  `json:"total_spent"`
	TotalCredited    Money  `json:"total_credited"`
	TransactionCount int    `json:"transaction_count"`
}

type MonthTrend struct {
	Month            string `json:"month"`
	TotalCredited    Money  `json:"total_credited"`
	TotalSpent       Money  `json:"total_spent"`
	Net              Money  `json:"net"`
	TransactionCount int    `json:"transaction_count"`
}

type Dashboard struct {
	Summary    SummaryView        `json:"summary"`
	Categories []CategorySpending `json:"category_spending"`
	Trend      []MonthTrend       `json:"monthly_trends"`
}

// TrendStart is the first day of the oldest month in the trend window ending
// at now's month.
func TrendStart(now time.Time) Date {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateOf(first.AddDate(0, -(TrendMonths - 1), 0))
}

// MonthKey formats the YYYY-MM bucket of d.
func MonthKey(d Date) string { return d.Format("2006-01") }
