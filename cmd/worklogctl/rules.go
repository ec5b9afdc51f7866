package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"worklog/internal/core"
	gsheet "worklog/internal/sheets/google"
)

func newRulesCmd(st *rootState) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List and edit classification rules",
	}
	rulesCmd.AddCommand(newRulesListCmd(st), newRulesSetCmd(st), newRulesDeleteCmd(st), newRulesPullCmd(st))
	return rulesCmd
}

func newRulesListCmd(st *rootState) *cobra.Command {
	var (
		source string
		app    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show rules, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := core.RuleFilter{AppNameContains: app}
			if source != "" {
				src, err := core.ParseRuleSource(source)
				if err != nil {
					return err
				}
				f.Source = src
			}
			rules, err := st.app.rules.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rules)
			}
			return writeRulesTable(cmd.OutOrStdout(), rules)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Only rules from this source: manual, ai")
	cmd.Flags().StringVar(&app, "app", "", "Only rules whose app name contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newRulesSetCmd(st *rootState) *cobra.Command {
	var (
		notes  string
		source string
	)
	cmd := &cobra.Command{
		Use:   "set <app> <billable|non-billable|ambiguous>",
		Short: "Create or replace the rule for an app",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.ParseClassification(args[1])
			if err != nil {
				return err
			}
			src, err := core.ParseRuleSource(source)
			if err != nil {
				return err
			}
			in := core.RuleInput{Classification: c, Source: src}
			if cmd.Flags().Changed("notes") {
				in.Notes = &notes
			}
			rule, err := st.app.rules.Upsert(cmd.Context(), operator(st.user), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", rule.AppName, rule.Classification, rule.Source)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form note stored with the rule")
	cmd.Flags().StringVar(&source, "source", "manual", "Rule source: manual, ai")
	return cmd
}

func newRulesDeleteCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <app>",
		Short: "Remove the rule for an app; succeeds if none exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.app.rules.Remove(cmd.Context(), operator(st.user), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", core.NormalizeAppName(args[0]))
			return nil
		},
	}
}

// newRulesPullCmd copies rules managers edited in the mirror sheet back into
// the store.
func newRulesPullCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Import rules from the Google Sheets mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.app.cfg
			if cfg.GoogleSpreadsheetID == "" {
				return fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleRulesSheetName, st.app.logger)
			if err != nil {
				return err
			}
			rules, err := client.ReadRules(ctx)
			if err != nil {
				return err
			}
			for _, r := range rules {
				in := core.RuleInput{Classification: r.Classification, Notes: r.Notes, Source: r.Source}
				if _, err := st.app.rules.Upsert(ctx, operator(st.user), r.AppName, in); err != nil {
					return fmt.Errorf("apply rule %s: %w", r.AppName, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d rules\n", len(rules))
			return nil
		},
	}
}

func writeRulesTable(w io.Writer, rules []core.ClassificationRule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tCLASSIFICATION\tSOURCE\tUPDATED\tNOTES")
	for _, r := range rules {
		notes := ""
		if r.Notes != nil {
			notes = *r.Notes
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.AppName, r.Classification, r.Source, r.UpdatedAt.UTC().Format(time.RFC3339), notes)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
