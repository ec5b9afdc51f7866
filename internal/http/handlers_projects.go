package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"worklog/internal/core"
	"worklog/internal/log"
)

func (s *Server) handleProjectSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summaries.ProjectSummary(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTimeLapse(w http.ResponseWriter, r *http.Request) {
	groups, err := s.summaries.TimeLapse(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	f, dims, err := s.aggregateParams(r)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	results, err := s.summaries.Aggregate(r.Context(), f, dims...)
	if err != nil {
		s.writeError(w, r, log.OpSummary, err)
		return
	}
	if results == nil {
		results = []core.AggregateResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.rates.List(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if rates == nil {
		rates = []core.MemberRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	auth := authFromRequest(r)
	if !auth.CanManage() {
		s.writeError(w, r, log.OpUpsert, core.ErrPermissionDenied)
		return
	}

	var req setRateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}

	rate, err := s.rates.Set(r.Context(), auth, chi.URLParam(r, "projectID"), chi.URLParam(r, "username"), *req.RatePerHour)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}
