package sheets

import (
	"context"

	"worklog/internal/core"
)

// Ports for the spreadsheet that mirrors the rule table for managers.
type (
	// RuleMirror overwrites the sheet with the full, ordered rule table.
	RuleMirror interface {
		ReplaceRules(ctx context.Context, rules []core.ClassificationRule) error
	}

	// RuleSheetReader reads rules back, e.g. after managers edited the sheet.
	RuleSheetReader interface {
		ReadRules(ctx context.Context) ([]core.ClassificationRule, error)
	}
)
