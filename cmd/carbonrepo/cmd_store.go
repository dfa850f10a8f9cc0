package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ochairo/carbonrepo/internal/logging"
)

func newAddCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <owner/name | url>",
		Short: "Start tracking a repository",
		Long: `Fetch the repository's default branch tip and latest release, hash every
release asset and record the result. Re-adding a tracked repository replaces
its entry and moves it to the end of the list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}
			result, err := engine.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%s %s\n", a.styles.ok.Render("Added"), result.Item.Coordinate)
			fmt.Fprintf(a.out, "  %s\n", result.Item.DisplayAnnotation())
			writeVerifications(a.out, a.styles, result.Verifications)
			return nil
		},
	}
}

func newRemoveCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <owner/name>",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a repository",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}
			if err := engine.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", a.styles.ok.Render("Removed"), args[0])
			return nil
		},
	}
}

func newListCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked repositories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			engine, err := a.engine(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			items := engine.Items()
			if len(items) == 0 {
				fmt.Fprintf(a.out, "No repositories tracked in %s\n", a.cfg.StorePath)
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(a.out, "%s\n  %s\n", a.styles.heading.Render(item.Coordinate), a.styles.dim.Render(item.DisplayAnnotation()))
				for _, name := range slices.Sorted(maps.Keys(item.Assets)) {
					digest, ok := item.ExpectedDigest(name)
					if !ok {
						digest = "(no digest)"
					}
					fmt.Fprintf(a.out, "    %s %s\n", name, a.styles.dim.Render(digest))
				}
			}
			log := logging.Get("cli")
			log.Debug().Int("items", len(items)).Msg("Listed repositories")
			return nil
		},
	}
}
