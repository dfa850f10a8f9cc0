package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ochairo/carbonrepo/internal/config"
	"github.com/ochairo/carbonrepo/internal/logging"
)

// quietConsole marks commands that own the terminal and must not receive
// console log output
const quietConsole = "quiet-console"

// newRootCmd creates the root command. The app is built in the persistent
// pre-run so every subcommand sees logging and configuration set up.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		verbosity  int
		configFile string
		storePath  string
		a          *app
	)

	rootCmd := &cobra.Command{
		Use:   "carbonrepo",
		Short: "Track GitHub repositories for new commits and verify release assets",
		Long: `carbonrepo keeps a list of GitHub repositories with the last commit seen on
their default branch and the SHA-256 digest of every asset of their latest
release. It reports repositories whose branch moved, summarizes what changed,
and re-downloads release assets to verify them against the recorded digests.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var console io.Writer = stderr
			if cmd.Annotations[quietConsole] == "true" {
				console = nil
			}
			logging.Setup(verbosity, console)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")

			cfg, err := config.Load(config.Options{ConfigFile: configFile})
			if err != nil {
				return err
			}
			if storePath != "" {
				cfg.StorePath = storePath
			}
			log.Debug().Str("store", cfg.StorePath).Str("config", cfg.Source).Msg("Configuration loaded")

			a = newApp(cfg, stdout)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/carbonrepo/config.yml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "fingerprint store file (overrides config)")

	appRef := func() *app { return a }
	rootCmd.AddCommand(
		newAddCmd(appRef),
		newRemoveCmd(appRef),
		newListCmd(appRef),
		newCheckCmd(appRef),
		newUpdateCmd(appRef),
		newDiffCmd(appRef),
		newVerifyCmd(appRef),
		newTUICmd(appRef),
	)
	return rootCmd
}
