package http

import (
	"net/http"

	"household/internal/core"
	applog "household/internal/log"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := s.deps.Transactions.ListTransactions(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if page.Data == nil {
		page.Data = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.deps.Transactions.CreateTransaction(r.Context(), req.toTransaction())
	if err != nil {
		respondError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		applog.FieldTransactionID, t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Transactions.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req patchTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.deps.Transactions.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction updated",
		applog.FieldTransactionID, t.ID)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Transactions.DeleteTransaction(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		applog.FieldTransactionID, id)
	w.WriteHeader(http.StatusNoContent)
}
