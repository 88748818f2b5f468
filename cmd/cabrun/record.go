package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgeddes/cabrun/internal/persistence"
)

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <record.json>",
		Short: "Print the step partition of a persisted run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := persistence.LoadRunRecord(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recipe: %s (%d steps)\n", rec.Name, len(rec.Steps))
			for _, s := range rec.Steps {
				fmt.Fprintf(out, "  %3d  %-10s %-12s %s\n", s.Number, s.Status, s.JType, s.Label)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var recipe string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyDB == "" {
				return errors.New("history requires --history-db")
			}
			db, err := sql.Open("sqlite", historyDB)
			if err != nil {
				return err
			}
			defer db.Close()

			store, err := persistence.NewHistoryStore(db)
			if err != nil {
				return err
			}
			runs, err := store.ListRuns(recipe)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range runs {
				finished := "-"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s  %-10s  pid=%-7d %s  %s -> %s\n",
					r.ID, r.Status, r.PID, r.Recipe,
					r.StartedAt.Format(time.RFC3339), finished)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&recipe, "recipe", "", "only show runs of this recipe")
	return cmd
}
