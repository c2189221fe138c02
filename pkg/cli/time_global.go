package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/factgraph/pkg/services"
)

// MigrateTimeGlobalOptions holds flags for the migrate-time-global command.
type MigrateTimeGlobalOptions struct {
	*RootOptions
	Start       string
	End         string
	ObjectTypes []string
}

// NewMigrateTimeGlobalCommand creates the migrate-time-global command.
func NewMigrateTimeGlobalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateTimeGlobalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate-time-global",
		Short: "Flag time global Facts and move them to the global index",
		Long: `Scan the Facts created in [start, end) and set the time global flag on those that must be
searchable regardless of time window: retractions, meta Facts about time global Facts, and
Facts binding only Objects of the given ObjectTypes. Migrated Facts are reindexed.

Examples:
  factgraph migrate-time-global --start 2020-01-01
  factgraph migrate-time-global --start 2024-01-01 --end 2024-02-01 --object-type threatActor --object-type tool`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := parseWindow(opts.Start, opts.End, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()

			objectTypes := opts.ObjectTypes
			if len(objectTypes) == 0 {
				objectTypes = app.Config.Reindex.TimeGlobalObjectTypes
			}
			reindexer := services.NewReindexer(app.Facts, app.Converter, app.Index, app.Config.Reindex.Workers, &app.Config.Retry, app.Logger)
			migrator, err := services.NewTimeGlobalMigrator(ctx, app.Facts, app.Objects, reindexer, objectTypes, app.Logger)
			if err != nil {
				return err
			}

			stats, err := migrator.Migrate(ctx, w.Start, w.End)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), stats); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d facts, migrated %d, %d failed\n",
					stats.Processed, stats.Migrated, stats.Failed)
			}
			if stats.Failed > 0 {
				return errors.New("some facts could not be migrated, see the log")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "window start, RFC 3339 or date (required)")
	_ = cmd.MarkFlagRequired("start")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end (exclusive), defaults to now")
	cmd.Flags().StringSliceVar(&opts.ObjectTypes, "object-type", nil, "time global ObjectType names, defaults to the configured list")

	return cmd
}
