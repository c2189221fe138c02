package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/factgraph/pkg/services"
)

// ReindexOptions holds flags for the reindex command.
type ReindexOptions struct {
	*RootOptions
	Start     string
	End       string
	Refreshed bool
	FactIDs   []string
	Workers   int
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReindexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search documents from the authoritative store",
		Long: `Rebuild the search documents of Facts from the authoritative store.

Select Facts by creation window (--start/--end), by refresh window (--refreshed), or by id
(--fact-id). Each Fact gets one document per refresh in the daily index of the refresh;
time global Facts get a single document in the global index.

Examples:
  factgraph reindex --start 2024-03-01 --end 2024-03-08
  factgraph reindex --start 2024-03-01 --refreshed
  factgraph reindex --fact-id 6f1c2d8e-... --fact-id 0e2a...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "window start, RFC 3339 or date")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end (exclusive), defaults to now")
	cmd.Flags().BoolVar(&opts.Refreshed, "refreshed", false, "select Facts refreshed in the window instead of created in it")
	cmd.Flags().StringSliceVar(&opts.FactIDs, "fact-id", nil, "reindex the given Fact ids")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parallel workers, defaults to the configured value")
	cmd.MarkFlagsMutuallyExclusive("fact-id", "start")
	cmd.MarkFlagsMutuallyExclusive("fact-id", "refreshed")
	cmd.MarkFlagsOneRequired("fact-id", "start")

	return cmd
}

func runReindex(cmd *cobra.Command, opts *ReindexOptions) error {
	ids, err := parseIDs(opts.FactIDs)
	if err != nil {
		return err
	}
	var w window
	if len(ids) == 0 {
		if w, err = parseWindow(opts.Start, opts.End, time.Now()); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	app, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	workers := opts.Workers
	if workers <= 0 {
		workers = app.Config.Reindex.Workers
	}
	reindexer := services.NewReindexer(app.Facts, app.Converter, app.Index, workers, &app.Config.Retry, app.Logger)

	var stats services.ReindexStats
	switch {
	case len(ids) > 0:
		stats, err = reindexer.ReindexFacts(ctx, ids)
	case opts.Refreshed:
		stats, err = reindexer.ReindexRefreshedWithin(ctx, w.Start, w.End)
	default:
		stats, err = reindexer.ReindexWindow(ctx, w.Start, w.End)
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), stats); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d facts into %d documents, %d failed\n",
			stats.Facts, stats.Documents, stats.Failed)
	}
	if stats.Failed > 0 {
		return errors.New("some facts could not be reindexed, see the log")
	}
	return nil
}
