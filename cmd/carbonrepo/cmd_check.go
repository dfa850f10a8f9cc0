package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	"github.com/ochairo/carbonrepo/internal/domain/services"
	"github.com/ochairo/carbonrepo/internal/logging"
)

func newCheckCmd(app func() *app) *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report repositories whose default branch moved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			log := logging.Get("cli")
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			report := engine.Check(cmd.Context())
			for _, outcome := range report.Outcomes {
				line := fmt.Sprintf("%-40s %s", outcome.Coordinate, a.styles.status(outcome.Status))
				switch outcome.Status {
				case entities.StatusOutdated:
					line += a.styles.dim.Render(fmt.Sprintf("  %s -> %s %s",
						services.ShortSHA(outcome.Drift.OldSHA), services.ShortSHA(outcome.Drift.NewSHA),
						entities.FirstLine(outcome.Drift.CommitMessage)))
				case entities.StatusCheckError:
					line += "  " + a.styles.dim.Render(outcome.Err.Error())
				}
				fmt.Fprintln(a.out, line)
			}
			fmt.Fprintf(a.out, "\n%d outdated, %d up to date, %d errors\n", report.Outdated, report.UpToDate, report.Errors)
			a.writeMetrics(log)

			if exitCode && (report.Outdated > 0 || report.Errors > 0) {
				return &exitError{code: 2, reason: "outdated repositories found"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 2 when any repository is outdated or could not be checked")
	return cmd
}

func newUpdateCmd(app func() *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "update [owner/name]",
		Short: "Refresh the recorded commit and asset digests",
		Long: `Refresh one repository (printing a change summary when its commit moved)
or, with --all, every tracked repository.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all does not take a repository")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("expected one repository or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			if all {
				result, err := engine.UpdateAll(cmd.Context())
				if err != nil {
					return err
				}
				for coordinate, itemErr := range result.Errors {
					fmt.Fprintf(a.out, "%s %s: %v\n", a.styles.fail.Render("Failed"), coordinate, itemErr)
				}
				fmt.Fprintf(a.out, "Updated %d repositories, %d failed\n", result.Updated, result.Failed)
				if result.Failed > 0 {
					return &exitError{code: 1, reason: "some repositories failed to update"}
				}
				return nil
			}

			result, err := engine.Update(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n  %s\n", a.styles.ok.Render("Updated"), result.Item.Coordinate, result.Item.DisplayAnnotation())
			writeVerifications(a.out, a.styles, result.Verifications)
			if result.Summary != nil {
				fmt.Fprintln(a.out)
				writeSummary(a.out, a.styles, result.Summary)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Update every tracked repository")
	return cmd
}

func newDiffCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <owner/name>",
		Short: "Summarize changes since the recorded commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			summary, err := engine.Diff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if summary == nil {
				fmt.Fprintf(a.out, "%s is %s\n", args[0], a.styles.status(entities.StatusUpToDate))
				return nil
			}
			writeSummary(a.out, a.styles, summary)
			return nil
		},
	}
}
