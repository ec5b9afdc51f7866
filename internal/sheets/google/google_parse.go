package google

import (
	"fmt"
	"strings"
	"time"

	"worklog/internal/core"
)

var ruleHeader = []interface{}{"App", "Classification", "Source", "Notes", "Updated"}

func rulesToValues(rules []core.ClassificationRule) [][]interface{} {
	values := make([][]interface{}, 0, len(rules)+1)
	values = append(values, ruleHeader)
	for _, r := range rules {
		notes := ""
		if r.Notes != nil {
			notes = *r.Notes
		}
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.UTC().Format(time.RFC3339)
		}
		values = append(values, []interface{}{r.AppName, string(r.Classification), string(r.Source), notes, updated})
	}
	return values
}

// parseRules reads a values matrix whose first row is the header. Columns are
// located by name so managers may reorder them.
func parseRules(values [][]interface{}) ([]core.ClassificationRule, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	colApp := indexOf(headers, "App")
	colClass := indexOf(headers, "Classification")
	if colApp == -1 || colClass == -1 {
		return nil, 0, fmt.Errorf("unexpected rules header: need App and Classification, got %v", headers)
	}
	colSource := indexOf(headers, "Source")
	colNotes := indexOf(headers, "Notes")
	colUpdated := indexOf(headers, "Updated")

	var (
		rules   []core.ClassificationRule
		skipped int
	)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		app := strings.TrimSpace(safeGet(row, colApp))
		if app == "" {
			continue
		}
		class, err := core.ParseClassification(safeGet(row, colClass))
		if err != nil {
			skipped++
			continue
		}
		source, err := core.ParseRuleSource(safeGet(row, colSource))
		if err != nil {
			skipped++
			continue
		}
		rule := core.ClassificationRule{
			AppName:        core.NormalizeAppName(app),
			Classification: class,
			Source:         source,
		}
		if n := strings.TrimSpace(safeGet(row, colNotes)); n != "" {
			rule.Notes = &n
		}
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(safeGet(row, colUpdated))); err == nil {
			rule.UpdatedAt = ts
		}
		rules = append(rules, rule)
	}
	return rules, skipped, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
