package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"worklog/internal/engine"
)

func newSummaryCmd(st *rootState) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "summary <projectID>",
		Short: "Print billable time and pay per member for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := st.app.summaries.ProjectSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), summary)
			case "md":
				return writeSummaryTable(cmd.OutOrStdout(), summary)
			default:
				return fmt.Errorf("unknown format %q: use md or json", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "Output format: md, json")
	return cmd
}

func newTimeLapseCmd(st *rootState) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "timelapse <projectID> <taskID>",
		Short: "Print a task's intervals grouped by app",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := st.app.summaries.TimeLapse(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), groups)
			}
			return writeTimeLapse(cmd.OutOrStdout(), groups)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func writeSummaryTable(w io.Writer, s engine.ProjectSummary) error {
	fmt.Fprintf(w, "Project %s (%s)\n", s.ProjectName, s.ProjectID)
	fmt.Fprintf(w, "Billable %s  Non-billable %s  Ambiguous %s\n",
		formatSeconds(s.Totals.BillableSeconds),
		formatSeconds(s.Totals.NonBillableSeconds),
		formatSeconds(s.Totals.AmbiguousSeconds))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tHOURS\tRATE\tPAY")
	for _, l := range s.MemberPayments {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n", l.Member, l.BillableHours, l.RatePerHour, l.TotalPay)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Total pay %.2f\n", s.GrandTotal)
	if s.RemainingBudget != nil {
		fmt.Fprintf(w, "Remaining budget %.2f\n", *s.RemainingBudget)
	}
	if len(s.IncompleteTasks) > 0 {
		fmt.Fprintf(w, "Incomplete tasks %d\n", len(s.IncompleteTasks))
	}
	return nil
}

func writeTimeLapse(w io.Writer, groups map[string]engine.TimeLapseGroup) error {
	apps := make([]string, 0, len(groups))
	for app := range groups {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		g := groups[app]
		fmt.Fprintf(w, "%s  %s\n", app, formatSeconds(g.TotalDuration))
		for _, iv := range g.Intervals {
			fmt.Fprintf(w, "  %s  %-10s %s  %s\n",
				iv.StartTime.UTC().Format("2006-01-02 15:04"), iv.Member, formatSeconds(iv.Duration), iv.Classification)
		}
	}
	return nil
}

// formatSeconds renders a duration as H:MM.
func formatSeconds(secs int64) string {
	return fmt.Sprintf("%d:%02d", secs/3600, (secs%3600)/60)
}
