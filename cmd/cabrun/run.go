package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgeddes/cabrun"
	"github.com/mgeddes/cabrun/internal/persistence"
)

func runCmd() *cobra.Command {
	var (
		steps  []int
		labels []string
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "run <recipe.yaml>",
		Short: "Execute a recipe file, optionally resuming a failed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obs, closeObs, err := historyObserver()
			if err != nil {
				return err
			}
			defer closeObs()

			rec, err := cabrun.FromFile(args[0], cabrun.Config{
				WorkDir:  workDir,
				Observer: obs,
			})
			if err != nil {
				return err
			}

			err = rec.Run(cmd.Context(), cabrun.RunOptions{
				Steps:  steps,
				Labels: labels,
				Resume: resume,
			})
			if report, ok := cabrun.AsFailureReport(err); ok {
				printReport(cmd, report)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recipe %s completed; record at %s\n",
				rec.Name(), rec.ResumeFile())
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&steps, "steps", nil, "1-based step positions to run, in order")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "step labels to run, in order")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue a failed run from its resume file")
	return cmd
}

func redoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redo <record.json>",
		Short: "Rebuild the job list from a persisted record and re-run it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := persistence.LoadRunRecord(args[0])
			if err != nil {
				return err
			}
			if stored.Name == "" {
				return errors.New("stored record has no recipe name")
			}

			obs, closeObs, err := historyObserver()
			if err != nil {
				return err
			}
			defer closeObs()

			rec, err := cabrun.NewRecipe(stored.Name, cabrun.Config{
				WorkDir:  workDir,
				Observer: obs,
			})
			if err != nil {
				return err
			}

			err = rec.Run(cmd.Context(), cabrun.RunOptions{Redo: args[0]})
			if report, ok := cabrun.AsFailureReport(err); ok {
				printReport(cmd, report)
			}
			return err
		},
	}
	return cmd
}

func printReport(cmd *cobra.Command, report *cabrun.FailureReport) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "recipe %s failed at step %d (%s): %v\n",
		report.Recipe, report.Failed.Number, report.Failed.Label, report.Cause)
	for _, s := range report.Completed {
		fmt.Fprintf(out, "  %3d  %-12s %s\n", s.Number, s.Status, s.Label)
	}
	fmt.Fprintf(out, "  %3d  %-12s %s\n", report.Failed.Number, report.Failed.Status, report.Failed.Label)
	for _, s := range report.Remaining {
		fmt.Fprintf(out, "  %3d  %-12s %s\n", s.Number, s.Status, s.Label)
	}
}
