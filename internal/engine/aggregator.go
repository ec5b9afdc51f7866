package engine

import (
	"fmt"
	"sort"
	"strings"

	"worklog/internal/core"
)

// Dimension is one axis records can be grouped by.
type Dimension string

const (
	DimMember Dimension = "member"
	DimApp    Dimension = "app"
	DimDate   Dimension = "date"
	DimTask   Dimension = "task"
)

// AllKey is the group key used when no dimension is requested.
const AllKey = "all"

const keySeparator = "|"

// ParseDimensions accepts a comma separated list such as "member,date".
func ParseDimensions(raw string) ([]Dimension, error) {
	var dims []Dimension
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		d := Dimension(part)
		switch d {
		case DimMember, DimApp, DimDate, DimTask:
			dims = append(dims, d)
		default:
			return nil, core.NewValidationError("groupBy", fmt.Sprintf("unknown dimension %q", part))
		}
	}
	return dims, nil
}

func (d Dimension) value(r ClassifiedRecord) string {
	switch d {
	case DimMember:
		return r.Member
	case DimApp:
		return core.NormalizeAppName(r.App)
	case DimDate:
		return r.StartTime.UTC().Format("2006-01-02")
	case DimTask:
		return r.TaskID
	default:
		return ""
	}
}

// GroupKey joins the values of groupBy for r in the order given.
func GroupKey(r ClassifiedRecord, groupBy ...Dimension) string {
	if len(groupBy) == 0 {
		return AllKey
	}
	parts := make([]string, len(groupBy))
	for i, d := range groupBy {
		parts[i] = d.value(r)
	}
	return strings.Join(parts, keySeparator)
}

// Aggregate sums coerced durations per group and classification. It is a pure
// fold: input order never changes the result and records are not deduplicated.
// Malformed durations count as zero; Flatten reports them.
func Aggregate(records []ClassifiedRecord, groupBy ...Dimension) map[string]core.AggregateResult {
	out := make(map[string]core.AggregateResult)
	for _, r := range records {
		secs, _ := r.Duration.Coerce()
		key := GroupKey(r, groupBy...)
		res := out[key]
		res.GroupKey = key
		add(&res, r.Classification, secs)
		res.IntervalCount++
		out[key] = res
	}
	return out
}

func add(res *core.AggregateResult, c core.Classification, secs int64) {
	switch c {
	case core.Billable:
		res.BillableSeconds += secs
	case core.NonBillable:
		res.NonBillableSeconds += secs
	default:
		res.AmbiguousSeconds += secs
	}
	res.TotalSeconds += secs
}

// Merge combines two aggregate maps. Merge(Aggregate(a), Aggregate(b)) equals
// Aggregate of a and b concatenated. Neither input is modified.
func Merge(a, b map[string]core.AggregateResult) map[string]core.AggregateResult {
	out := make(map[string]core.AggregateResult, len(a)+len(b))
	for _, m := range []map[string]core.AggregateResult{a, b} {
		for k, v := range m {
			res := out[k]
			res.GroupKey = k
			res.BillableSeconds += v.BillableSeconds
			res.NonBillableSeconds += v.NonBillableSeconds
			res.AmbiguousSeconds += v.AmbiguousSeconds
			res.TotalSeconds += v.TotalSeconds
			res.IntervalCount += v.IntervalCount
			out[k] = res
		}
	}
	return out
}

// Sorted returns the results ordered by group key.
func Sorted(m map[string]core.AggregateResult) []core.AggregateResult {
	out := make([]core.AggregateResult, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupKey < out[j].GroupKey })
	return out
}
