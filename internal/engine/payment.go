package engine

import (
	"sort"

	"worklog/internal/core"
)

type PayOptions struct {
	DefaultRate float64
	Budget      *float64
}

type PaymentReport struct {
	Lines           []core.PaymentLine `json:"lines"`
	GrandTotal      float64            `json:"grandTotal"`
	RemainingBudget *float64           `json:"remainingBudget,omitempty"`
}

// ComputePay prices billable time for every member found in either map, so a
// member with a seeded rate but no logged time still gets a zero line.
func ComputePay(memberAggregates map[string]core.AggregateResult, rateTable map[string]float64, opts PayOptions) PaymentReport {
	members := make(map[string]struct{}, len(memberAggregates)+len(rateTable))
	for m := range memberAggregates {
		members[m] = struct{}{}
	}
	for m := range rateTable {
		members[m] = struct{}{}
	}

	names := make([]string, 0, len(members))
	for m := range members {
		names = append(names, m)
	}
	sort.Strings(names)

	report := PaymentReport{Lines: make([]core.PaymentLine, 0, len(names))}
	for _, m := range names {
		rate, ok := rateTable[m]
		if !ok {
			rate = opts.DefaultRate
		}
		hours := float64(memberAggregates[m].BillableSeconds) / 3600
		line := core.PaymentLine{
			Member:        m,
			BillableHours: hours,
			RatePerHour:   rate,
			TotalPay:      hours * rate,
		}
		report.GrandTotal += line.TotalPay
		report.Lines = append(report.Lines, line)
	}

	if opts.Budget != nil {
		remaining := *opts.Budget - report.GrandTotal
		report.RemainingBudget = &remaining
	}
	return report
}

// RateTable indexes rates by username.
func RateTable(rates []core.MemberRate) map[string]float64 {
	t := make(map[string]float64, len(rates))
	for _, r := range rates {
		t[r.Username] = r.RatePerHour
	}
	return t
}
