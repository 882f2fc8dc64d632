package ledger

import (
	"sort"

	"spendtracker/internal/core"
)

// The functions below project an in-memory active set into the read-side
// views. The SQLite store computes the same views in SQL.

// Totals sums the rows matching f.
func Totals(rows []core.Transaction, f core.Filter) core.Totals {
	var out core.Totals
	for _, t := range rows {
		if !f.Matches(t) {
			continue
		}
		out.Credited = out.Credited.Add(t.Credited)
		out.Debited = out.Debited.Add(t.Debited)
		out.Count++
	}
	return out
}

// LatestBalance is the stored balance of the chronologically last row dated
// on or before asOf. A zero asOf means no upper bound.
func LatestBalance(rows []core.Transaction, asOf core.Date) core.Money {
	var (
		latest core.Transaction
		found  bool
	)
	for _, t := range rows {
		if !asOf.IsZero() && t.Date.After(asOf.Time) {
			continue
		}
		if !found || latest.Key().Less(t.Key()) {
			latest, found = t, true
		}
	}
	if !found {
		return core.Zero
	}
	return latest.Balance
}

// Breakdown groups rows in f's date range by category. Rows carry the joined
// category name and color.
func Breakdown(rows []core.Transaction, f core.Filter) []core.CategorySpending {
	f = f.DateRange()
	byID := make(map[int64]*core.CategorySpending)
	for _, t := range rows {
		if !f.Matches(t) {
			continue
		}
		cs, ok := byID[t.CategoryID]
		if !ok {
			cs = &core.CategorySpending{CategoryID: t.CategoryID, Name: t.CategoryName, Color: t.CategoryColor}
			byID[t.CategoryID] = cs
		}
		cs.TotalSpent = cs.TotalSpent.Add(t.Debited)
		cs.TotalCredited = cs.TotalCredited.Add(t.Credited)
		cs.TransactionCount++
	}

	out := make([]core.CategorySpending, 0, len(byID))
	for _, cs := range byID {
		out = append(out, *cs)
	}
	SortBreakdown(out)
	return out
}

// SortBreakdown orders by total spent descending, then name, then id.
func SortBreakdown(items []core.CategorySpending) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if c := a.TotalSpent.Cmp(b.TotalSpent); c != 0 {
			return c > 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.CategoryID < b.CategoryID
	})
}

// Trend buckets rows dated on or after since by calendar month, newest
// month first. Months without activity are omitted.
func Trend(rows []core.Transaction, since core.Date) []core.MonthTrend {
	byMonth := make(map[string]*core.MonthTrend)
	for _, t := range rows {
		if t.Date.Before(since.Time) {
			continue
		}
		key := core.MonthKey(t.Date)
		mt, ok := byMonth[key]
		if !ok {
			mt = &core.MonthTrend{Month: key}
			byMonth[key] = mt
		}
		mt.TotalCredited = mt.TotalCredited.Add(t.Credited)
		mt.TotalSpent = mt.TotalSpent.Add(t.Debited)
		mt.TransactionCount++
	}

	out := make([]core.MonthTrend, 0, len(byMonth))
	for _, mt := range byMonth {
		mt.Net = mt.TotalCredited.Sub(mt.TotalSpent)
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}
