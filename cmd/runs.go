package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hyperke/client-health/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and summarizing recorded pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, 10000)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsListCmd.Flags().Bool("json", false, "print runs as JSON")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	ByMode     map[model.RunMode]int
	AvgDurSecs float64
}

// computeRunStats aggregates runs started at or after since.
func computeRunStats(runs []model.Run, since time.Time) runStats {
	s := runStats{ByMode: make(map[model.RunMode]int)}

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		if r.StartedAt.Before(since) {
			continue
		}
		s.Total++
		s.ByMode[r.Mode]++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			if r.FinishedAt != nil {
				totalDur += r.FinishedAt.Sub(r.StartedAt)
				durCount++
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tSTATUS\tSTARTED\tDURATION\tCLIENTS\tRED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t-------\t---\t-----")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		clients, red := "", ""
		if r.Summary != nil {
			clients = p.Sprintf("%d", r.Summary.Snapshots)
			red = p.Sprintf("%d", r.Summary.Status[model.RAGRed])
		}

		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Mode,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			clients,
			red,
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	for _, m := range []model.RunMode{model.RunModeFull, model.RunModeQuick, model.RunModeNotContacted} {
		if n := s.ByMode[m]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", m, n)
		}
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
