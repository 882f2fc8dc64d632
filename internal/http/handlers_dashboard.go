package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"

	"spendtracker/internal/core"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.ledger.Summary(r.Context(), userID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", view)
}

// handleCategorySpending ignores category_id; the breakdown is per category.
func (s *Server) handleCategorySpending(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.ledger.CategoryBreakdown(r.Context(), userID(r), f.From, f.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.CategorySpending{}
	}
	writeOK(w, "", rows)
}

func (s *Server) handleMonthlyTrends(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.MonthlyTrend(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.MonthTrend{}
	}
	writeOK(w, "", rows)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.ledger.Dashboard(r.Context(), userID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d.Categories == nil {
		d.Categories = []core.CategorySpending{}
	}
	if d.Trend == nil {
		d.Trend = []core.MonthTrend{}
	}
	writeOK(w, "", d)
}

type csvExport struct {
	CSVData  string `json:"csv_data"`
	Filename string `json:"filename"`
}

// RenderCSV writes rows in export order. Rows without a category name are
// written as Uncategorized.
func RenderCSV(rows []core.Transaction) (string, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(core.ExportHeader); err != nil {
		return "", err
	}
	for _, t := range rows {
		if err := cw.Write(t.ExportRecord()); err != nil {
			return "", err
		}
	}
	cw.Flush()
	return buf.String(), cw.Error()
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.ledger.Export(r.Context(), userID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := RenderCSV(rows)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: render csv: %w", core.ErrInfrastructure, err))
		return
	}
	writeOK(w, "", csvExport{
		CSVData:  data,
		Filename: "transactions_" + s.now().Format("20060102_150405") + ".csv",
	})
}
