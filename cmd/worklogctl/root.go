package main

import (
	"github.com/spf13/cobra"
)

type rootState struct {
	open appOpener
	app  *app
	user string
}

func newRootCmd(open appOpener) *cobra.Command {
	st := &rootState{open: open}

	rootCmd := &cobra.Command{
		Use:           "worklogctl",
		Short:         "Administer worklog rules, entries and summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.app != nil && st.app.cleanup != nil {
				return st.app.cleanup()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&st.user, "user", "worklogctl", "User ID recorded on rule changes")

	rootCmd.AddCommand(newImportCmd(st))
	rootCmd.AddCommand(newRulesCmd(st))
	rootCmd.AddCommand(newSummaryCmd(st))
	rootCmd.AddCommand(newTimeLapseCmd(st))
	return rootCmd
}
