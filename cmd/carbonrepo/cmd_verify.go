package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ochairo/carbonrepo/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/carbonrepo/internal/domain-orchestrators"
	"github.com/ochairo/carbonrepo/internal/domain/entities"
	"github.com/ochairo/carbonrepo/internal/external-adapters/jsonstore"
	"github.com/ochairo/carbonrepo/internal/logging"
)

func newVerifyCmd(app func() *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-download every release asset and verify recorded digests",
		Long: `Build the verification report of every tracked repository: metadata,
download totals, contributors, social preview image and the SHA-256 digest
of every asset of the latest release compared to the recorded one. The
report is written as a JSON array. Exits with status 1 when any repository
could not be processed or any asset digest does not match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			log := logging.Get("cli")
			start := time.Now()
			if output == "" {
				output = a.cfg.OutputPath
			}

			items, err := jsonstore.New(a.cfg.StorePath).Load()
			if err != nil {
				return err
			}
			checksums, err := a.checksumVerifier(cmd.Context())
			if err != nil {
				return err
			}

			batch := orchestrators.NewBatchVerifier(a.gateway, checksums, orchestrators.BatchVerifierConfig{
				Fanout:           a.cfg.Capacity,
				ContributorLimit: a.cfg.ContributorLimit,
				Icon:             gateways.SocialPreviewURL,
				Sink:             a.fanIn(nil),
				Logger:           logging.Get("verify"),
			})

			fmt.Fprintf(a.out, "Verifying %d repositories...\n", len(items))
			summary := batch.Run(cmd.Context(), items)

			fmt.Fprintf(a.out, "Writing output to %s\n", output)
			if err := orchestrators.WriteReports(output, summary.Reports); err != nil {
				return err
			}
			a.writeMetrics(log)

			writeBatchSummary(a.out, a.styles, summary, time.Since(start), output)
			if !summary.OK() {
				return &exitError{code: 1, reason: "verification failed"}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "report file (default from config, repos-gen2.json)")
	return cmd
}

func writeBatchSummary(w io.Writer, s styles, summary *entities.BatchSummary, elapsed time.Duration, output string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.heading.Render("====== Processing Complete ======"))
	fmt.Fprintf(w, "Total processed:        %d\n", summary.Processed)
	if summary.Failed > 0 {
		fmt.Fprintf(w, "Failed:                 %s\n", s.fail.Render(fmt.Sprint(summary.Failed)))
	}
	fmt.Fprintf(w, "Total stars (sum):      %d\n", summary.Stars)
	fmt.Fprintf(w, "Total downloads (sum):  %d\n", summary.Downloads)

	mismatches := fmt.Sprint(summary.MismatchCount())
	if summary.MismatchCount() > 0 {
		mismatches = s.fail.Render(mismatches)
	}
	fmt.Fprintf(w, "Total hash mismatches:  %s\n", mismatches)
	if len(summary.Mismatches) > 0 {
		fmt.Fprintln(w, "    Details:")
		names := make([]string, 0, len(summary.Mismatches))
		for name := range summary.Mismatches {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  - %s mismatched: %s\n", name, strings.Join(summary.Mismatches[name], ", "))
		}
	}
	fmt.Fprintf(w, "Time elapsed:           %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Output written to:      %s\n", output)
}
