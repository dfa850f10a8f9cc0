package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ochairo/carbonrepo/internal/logging"
	"github.com/ochairo/carbonrepo/internal/tui"
)

func newTUICmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and update tracked repositories interactively",
		Long: `Open a full-screen view of the tracked repositories. Checks are paced so the
progress of each repository stays visible. Logs go to the log file only.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{quietConsole: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			f, ok := a.out.(*os.File)
			if !ok || !isatty.IsTerminal(f.Fd()) {
				return fmt.Errorf("tui requires an interactive terminal")
			}

			bridge := tui.NewBridge()
			engine, err := a.engine(cmd.Context(), true, bridge.Sink)
			if err != nil {
				return err
			}
			defer a.writeMetrics(logging.Get("tui"))

			return tui.Run(cmd.Context(), engine, bridge)
		},
	}
}
