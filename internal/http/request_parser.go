package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"worklog/internal/core"
	"worklog/internal/engine"
)

// Headers set by the upstream auth gateway.
const (
	HeaderUserID       = "X-User-ID"
	HeaderUserVerified = "X-User-Verified"
	HeaderUserRoles    = "X-User-Roles"
)

const maxBodyBytes = 1 << 20

type upsertRuleRequest struct {
	Classification string  `json:"classification" validate:"required,oneof=billable non-billable ambiguous"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
	Source         string  `json:"source" validate:"omitempty,oneof=manual ai"`
}

type setRateRequest struct {
	RatePerHour *float64 `json:"ratePerHour" validate:"required,gte=0"`
}

type aggregateQuery struct {
	GroupBy  string
	Username string `validate:"max=200"`
	From     string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To       string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

var fieldMessages = map[string]string{
	"upsertRuleRequest.Classification.required": "is required",
	"upsertRuleRequest.Classification.oneof":    "must be one of billable, non-billable, ambiguous",
	"upsertRuleRequest.Notes.max":               "must be at most 2000 characters",
	"upsertRuleRequest.Source.oneof":            "must be one of manual, ai",
	"setRateRequest.RatePerHour.required":       "is required",
	"setRateRequest.RatePerHour.gte":            "must not be negative",
	"aggregateQuery.Username.max":               "must be at most 200 characters",
	"aggregateQuery.From.datetime":              "must be an RFC 3339 timestamp",
	"aggregateQuery.To.datetime":                "must be an RFC 3339 timestamp",
}

// authFromRequest reads the gateway headers. Missing headers yield an
// unverified caller, which every mutation rejects.
func authFromRequest(r *http.Request) core.AuthContext {
	auth := core.AuthContext{UserID: strings.TrimSpace(r.Header.Get(HeaderUserID))}
	auth.Verified, _ = strconv.ParseBool(strings.TrimSpace(r.Header.Get(HeaderUserVerified)))

	for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "manager":
			auth.IsManager = true
		case "creator":
			auth.IsCreator = true
		}
	}
	return auth
}

// decodeJSON reads exactly one JSON object into dst and validates it.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "is required")
		}
		return core.NewValidationError("body", "must be a valid JSON object")
	}
	if dec.More() {
		return core.NewValidationError("body", "must contain a single JSON object")
	}
	return s.validateStruct(dst)
}

// validateStruct reports the first failing field as a core.ValidationError.
func (s *Server) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return core.NewValidationError("body", "is invalid")
	}
	e := verrs[0]
	msg, ok := fieldMessages[e.StructNamespace()+"."+e.Tag()]
	if !ok {
		msg = fmt.Sprintf("failed %s validation", e.Tag())
	}
	return core.NewValidationError(jsonFieldName(e.Field()), msg)
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func (req upsertRuleRequest) toInput() (core.RuleInput, error) {
	c, err := core.ParseClassification(req.Classification)
	if err != nil {
		return core.RuleInput{}, err
	}
	src, err := core.ParseRuleSource(req.Source)
	if err != nil {
		return core.RuleInput{}, err
	}
	return core.RuleInput{Classification: c, Notes: req.Notes, Source: src}, nil
}

// appNameParam returns the decoded {appName} segment. chi matches on
// URL.RawPath when the request carried escapes such as %2F, and then hands
// the segment over still encoded.
func appNameParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "appName")
	if r.URL.RawPath == "" {
		return name, nil
	}
	decoded, err := url.PathUnescape(name)
	if err != nil {
		return "", core.NewValidationError("appName", "must be a valid URL path segment")
	}
	return decoded, nil
}

func ruleFilterFromQuery(r *http.Request) (core.RuleFilter, error) {
	q := r.URL.Query()
	f := core.RuleFilter{AppNameContains: strings.TrimSpace(q.Get("appName"))}
	if raw := strings.TrimSpace(q.Get("source")); raw != "" {
		src, err := core.ParseRuleSource(raw)
		if err != nil {
			return core.RuleFilter{}, err
		}
		f.Source = src
	}
	return f, nil
}

// aggregateParams reads ?groupBy=&username=&from=&to= for the project in the
// path. The range is half-open: from inclusive, to exclusive.
func (s *Server) aggregateParams(r *http.Request) (core.EntryFilter, []engine.Dimension, error) {
	q := r.URL.Query()
	aq := aggregateQuery{
		GroupBy:  q.Get("groupBy"),
		Username: strings.TrimSpace(q.Get("username")),
		From:     strings.TrimSpace(q.Get("from")),
		To:       strings.TrimSpace(q.Get("to")),
	}
	if err := s.validateStruct(aq); err != nil {
		return core.EntryFilter{}, nil, err
	}
	dims, err := engine.ParseDimensions(aq.GroupBy)
	if err != nil {
		return core.EntryFilter{}, nil, err
	}

	f := core.EntryFilter{ProjectID: chi.URLParam(r, "projectID"), Username: aq.Username}
	if aq.From != "" {
		f.From, _ = time.Parse(time.RFC3339, aq.From)
	}
	if aq.To != "" {
		f.To, _ = time.Parse(time.RFC3339, aq.To)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return core.EntryFilter{}, nil, core.NewValidationError("to", "must be after from")
	}
	return f, dims, nil
}
