package http

import (
	"net/http"

	"spendtracker/internal/core"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f, err := ParseFilter(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := ParsePage(query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.ledger.ListTransactions(r.Context(), userID(r), f, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page.Transactions == nil {
		page.Transactions = []core.Transaction{}
	}
	writeOK(w, "", page)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var in core.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.ledger.AddTransaction(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Transaction added successfully", res)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.UpdateTransaction(r.Context(), userID(r), id, in); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Transaction updated successfully", nil)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Transaction deleted successfully", nil)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.Recompute(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Balances recomputed", map[string]int{"rows_updated": n})
}
