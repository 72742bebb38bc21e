package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hyperke/client-health/internal/model"
	"github.com/hyperke/client-health/internal/pipeline"
)

var runSkipSmartLead bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest, score every active client, and refresh not-contacted counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode := model.RunModeFull
		validate := "run"
		if runSkipSmartLead {
			mode, validate = model.RunModeQuick, "quick"
		}
		if err := cfg.Validate(validate); err != nil {
			return err
		}
		ctx := cmd.Context()

		th, err := loadThresholds()
		if err != nil {
			return err
		}
		src, err := initSources(ctx)
		if err != nil {
			return err
		}
		defer src.Close()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var fetcher pipeline.LeadFetcher
		if mode == model.RunModeFull {
			fetcher = initLeadFetcher()
		}
		p := pipeline.New(pipelineConfig(th), src.reader, src.reader, st, fetcher, initPusher())

		return withRunLock(ctx, func(ctx context.Context) error {
			summary, err := p.Run(ctx, mode)
			if summary != nil {
				printSummary(os.Stdout, mode, summary)
			}
			return err
		})
	},
}

var notContactedCmd = &cobra.Command{
	Use:   "not-contacted",
	Short: "Refresh only the not-contacted counts of the current snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("not-contacted"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(pipeline.Config{}, nil, nil, st, initLeadFetcher(), initPusher())
		return withRunLock(ctx, func(ctx context.Context) error {
			summary, err := p.Run(ctx, model.RunModeNotContacted)
			if summary != nil {
				printSummary(os.Stdout, model.RunModeNotContacted, summary)
			}
			return err
		})
	},
}

// printSummary writes a human-readable run summary with grouped numbers.
func printSummary(w io.Writer, mode model.RunMode, s *model.RunSummary) {
	p := message.NewPrinter(language.English)
	_, _ = fmt.Fprintf(w, "mode: %s\n", mode)
	if s.WindowStart != "" {
		_, _ = p.Fprintf(w, "window: %s to %s (%d days)\n", s.WindowStart, s.WindowEnd, s.DaysInPeriod)
		_, _ = p.Fprintf(w, "clients: %d  performance rows: %d  associations: %d\n", s.Clients, s.PerformanceRows, s.Associations)
		_, _ = p.Fprintf(w, "unmatched: %d clients, %d labels\n", s.UnmatchedClients, s.UnmatchedLabels)
	}
	_, _ = p.Fprintf(w, "snapshots: %d  (Green %d / Yellow %d / Red %d)\n",
		s.Snapshots, s.Status[model.RAGGreen], s.Status[model.RAGYellow], s.Status[model.RAGRed])
	switch {
	case s.LeadFetchSkipped:
		_, _ = fmt.Fprintln(w, "not-contacted: SmartLead skipped, prior values kept")
	default:
		_, _ = p.Fprintf(w, "not-contacted: %d fresh, %d preserved (%d campaigns, %d failed)\n",
			s.NotContactedFresh, s.NotContactedPreserved, s.LeadCampaigns, s.LeadCampaignsFailed)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runSkipSmartLead, "skip-smartlead", false, "skip the SmartLead fetch and keep prior not-contacted values")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(notContactedCmd)
}
