package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"worklog/internal/core"
	"worklog/internal/log"
)

// importFile is the export format of the tracking agent's backend.
type importFile struct {
	Projects []core.Project   `json:"projects"`
	Entries  []core.TimeEntry `json:"entries"`
}

func newImportCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load projects and time entries from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var in importFile
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a := st.app
			for _, p := range in.Projects {
				if err := a.store.SaveProject(ctx, p); err != nil {
					return fmt.Errorf("save project %s: %w", p.ID, err)
				}
			}

			generated := 0
			for i := range in.Entries {
				if strings.TrimSpace(in.Entries[i].ID) == "" {
					in.Entries[i].ID = uuid.NewString()
					generated++
				}
			}
			if err := a.store.SaveEntries(ctx, in.Entries); err != nil {
				return fmt.Errorf("save entries: %w", err)
			}

			a.logger.InfoContext(ctx, "Import finished",
				log.FieldOperation, log.OpImport,
				"projects", len(in.Projects),
				"entries", len(in.Entries),
				"generated_ids", generated)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects, %d entries\n", len(in.Projects), len(in.Entries))
			return nil
		},
	}
}
