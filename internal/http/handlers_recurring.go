package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"household/internal/core"
	applog "household/internal/log"
	"household/internal/services"

	"github.com/go-chi/chi/v5"
)

const cronSecretHeader = "X-Cron-Secret"

// handleRunRecurring triggers one generation pass. Concurrent calls for the
// same day share a single run.
func (s *Server) handleRunRecurring(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	if !secretMatches(s.deps.CronSecret, r.Header.Get(cronSecretHeader)) {
		logger.WarnContext(r.Context(), "Recurring trigger rejected",
			applog.FieldClientIP, extractClientIP(r))
		writeError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	today, err := runDate(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	v, err, shared := s.runs.Do(today.String(), func() (any, error) {
		// The shared run outlives any single caller.
		ctx := context.WithoutCancel(r.Context())
		return s.deps.Runner.Run(ctx, today)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	res := v.(services.GenerateResult)
	if res.Errors == nil {
		res.Errors = []string{}
	}
	logger.InfoContext(r.Context(), "Recurring run completed",
		applog.FieldToday, today.String(),
		applog.FieldGenerated, res.Generated,
		applog.FieldRuleErrors, len(res.Errors),
		"shared", shared)
	writeJSON(w, http.StatusOK, res)
}

// runDate reads today from the query string or an optional JSON body and
// falls back to the current UTC date.
func runDate(w http.ResponseWriter, r *http.Request) (core.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("today"))
	if raw == "" && r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		var req runRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return core.Date{}, err
		}
		raw = strings.TrimSpace(req.Today)
	}
	if raw == "" {
		return core.Today(), nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, badRequest{fmt.Sprintf("invalid today %q", raw)}
	}
	return d, nil
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	f, err := parseRuleFilter(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	rules, err := s.deps.Rules.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if rules == nil {
		rules = []services.RuleView{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.deps.Rules.Create(r.Context(), req.toRule())
	if err != nil {
		respondError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Recurring rule created",
		applog.FieldRuleID, view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req patchRuleRequest
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

	view, err := s.deps.Rules.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Rules.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Recurring rule deleted",
		applog.FieldRuleID, id)
	w.WriteHeader(http.StatusNoContent)
}
