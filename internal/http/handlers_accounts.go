package http

import (
	"errors"
	"net/http"

	"household/internal/core"

	"github.com/go-chi/chi/v5"
)

// respondAccountError answers 404 for a missing account addressed by path.
// Anywhere else an unknown account is a bad reference (422).
func respondAccountError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	respondError(w, r, err)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Directory.ListAccounts(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}

	a, err := s.deps.Directory.CreateAccount(r.Context(), core.Account{
		UserID:   req.UserID,
		Name:     req.Name,
		Type:     req.Type,
		Currency: req.Currency,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Directory.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req patchAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}

	a, err := s.deps.Directory.UpdateAccount(r.Context(), chi.URLParam(r, "id"), core.AccountPatch{
		Name:     req.Name,
		Type:     req.Type,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := queryTransactionType(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	cats, err := s.deps.Directory.ListCategories(r.Context(), typ)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}
