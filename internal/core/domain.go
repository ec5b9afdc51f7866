package core

import (
	"strings"
	"time"
)

const (
	Billable    Classification = "billable"
	NonBillable Classification = "non-billable"
	Ambiguous   Classification = "ambiguous"
)

const (
	SourceManual RuleSource = "manual"
	SourceAI     RuleSource = "ai"
)

type (
	// Classification is the billing category assigned to a tracked interval.
	Classification string

	// RuleSource records who authored a classification rule.
	RuleSource string

	TimeInterval struct {
		StartTime time.Time   `json:"startTime"`
		EndTime   time.Time   `json:"endTime"`
		Duration  RawDuration `json:"duration"` // seconds, authoritative
	}

	Appointment struct {
		AppName           string         `json:"appName"`
		AppTitle          string         `json:"apptitle"`
		IsBillable        *bool          `json:"isBillable,omitempty"`
		SuggestedCategory *string        `json:"suggestedCategory,omitempty"`
		Intervals         []TimeInterval `json:"intervals"`
	}

	TimeEntry struct {
		ID           string        `json:"id"`
		Username     string        `json:"username"`
		ProjectID    string        `json:"projectId"`
		TaskID       string        `json:"taskId"`
		Appointments []Appointment `json:"appointments"`
	}

	ClassificationRule struct {
		AppName        string         `json:"appName"`
		Classification Classification `json:"classification"`
		Source         RuleSource     `json:"source"`
		Notes          *string        `json:"notes,omitempty"`
		UpdatedAt      time.Time      `json:"updatedAt"`
	}

	MemberRate struct {
		ProjectID   string    `json:"projectId"`
		Username    string    `json:"username"`
		RatePerHour float64   `json:"ratePerHour"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	Task struct {
		ID        string `json:"id"`
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
		Status    string `json:"status"`
	}

	Project struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Budget *float64 `json:"budget,omitempty"`
		Tasks  []Task   `json:"tasks"`
		// AISummary is produced elsewhere and never interpreted here.
		AISummary string `json:"aiSummary,omitempty"`
	}

	// AggregateResult holds the summed seconds of one group. TotalSeconds is
	// always the sum of the three classification buckets.
	AggregateResult struct {
		GroupKey           string `json:"groupKey"`
		BillableSeconds    int64  `json:"billableSeconds"`
		NonBillableSeconds int64  `json:"nonBillableSeconds"`
		AmbiguousSeconds   int64  `json:"ambiguousSeconds"`
		TotalSeconds       int64  `json:"totalSeconds"`
		IntervalCount      int    `json:"intervalCount"`
	}

	PaymentLine struct {
		Member        string  `json:"member"`
		BillableHours float64 `json:"billableHours"`
		RatePerHour   float64 `json:"ratePerHour"`
		TotalPay      float64 `json:"totalPay"`
	}

	// AuthContext is the per-request identity handed over by the auth gateway.
	AuthContext struct {
		UserID    string
		IsManager bool
		IsCreator bool
		Verified  bool
	}

	// Capability is what a caller must present to mutate persisted state.
	Capability struct {
		Verified bool
	}
)

// Valid reports whether c is one of the three known categories.
func (c Classification) Valid() bool {
	switch c {
	case Billable, NonBillable, Ambiguous:
		return true
	default:
		return false
	}
}

func (s RuleSource) Valid() bool {
	return s == SourceManual || s == SourceAI
}

// ParseClassification accepts the wire value case-insensitively.
func ParseClassification(raw string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", NewValidationError("classification", "must be one of billable, non-billable, ambiguous")
	}
	return c, nil
}

// ParseRuleSource maps an empty value to SourceManual.
func ParseRuleSource(raw string) (RuleSource, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return SourceManual, nil
	}
	s := RuleSource(raw)
	if !s.Valid() {
		return "", NewValidationError("source", "must be one of manual, ai")
	}
	return s, nil
}

// Capability derives the mutation capability carried by this request.
func (a AuthContext) Capability() Capability {
	return Capability{Verified: a.Verified}
}

// CanManage reports whether the caller may curate rules and rates.
func (a AuthContext) CanManage() bool {
	return a.Verified && (a.IsManager || a.IsCreator)
}

// Incomplete reports whether the task still needs work.
func (t Task) Incomplete() bool {
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "done", "completed":
		return false
	default:
		return true
	}
}

func (r MemberRate) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return NewValidationError("projectId", "is required")
	}
	if strings.TrimSpace(r.Username) == "" {
		return NewValidationError("username", "is required")
	}
	if r.RatePerHour < 0 {
		return NewValidationError("ratePerHour", "must not be negative")
	}
	return nil
}
