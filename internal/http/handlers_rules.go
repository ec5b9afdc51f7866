package http

import (
	"net/http"

	"worklog/internal/core"
	"worklog/internal/log"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	f, err := ruleFilterFromQuery(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	rules, err := s.rules.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if rules == nil {
		rules = []core.ClassificationRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	auth := authFromRequest(r)
	// Authorization comes first so an unauthorised caller learns nothing
	// about body validation.
	if !auth.CanManage() {
		s.writeError(w, r, log.OpUpsert, core.ErrPermissionDenied)
		return
	}

	var req upsertRuleRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}

	appName, err := appNameParam(r)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	rule, err := s.rules.Upsert(r.Context(), auth, appName, in)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	appName, err := appNameParam(r)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.rules.Remove(r.Context(), authFromRequest(r), appName); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
