package core

import "sort"

// SortRules orders rules newest-updated first, ties by app name ascending.
func SortRules(rules []ClassificationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].UpdatedAt.Equal(rules[j].UpdatedAt) {
			return rules[i].UpdatedAt.After(rules[j].UpdatedAt)
		}
		return rules[i].AppName < rules[j].AppName
	})
}

// RuleIndex maps normalized app names to rules.
func RuleIndex(rules []ClassificationRule) map[string]ClassificationRule {
	idx := make(map[string]ClassificationRule, len(rules))
	for _, r := range rules {
		idx[NormalizeAppName(r.AppName)] = r
	}
	return idx
}
