package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/factgraph/pkg/services"
)

// NewImportTypesCommand creates the import-types command.
func NewImportTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-types <file>",
		Short: "Create or update ObjectTypes, FactTypes and Origins from YAML",
		Long: `Upsert the ObjectTypes, FactTypes and Origins listed in a YAML document.

Entries are matched by name, so importing the same document twice keeps their ids.
Bindings reference ObjectTypes and FactTypes by name.

Example document:
  object_types:
    - name: ip
  fact_types:
    - name: seenIn
      object_bindings:
        - source: ip
  origins:
    - name: osint-feed
      trust: 0.5

Examples:
  factgraph import-types types.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := services.ParseTypeDocument(f)
			if err != nil {
				return err
			}

			app, err := openDatabase(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			app.openRepositories()

			stats, err := services.NewTypeImporter(app.Facts, app.Objects, app.Origins, app.Logger).Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d object types, %d fact types, %d origins\n",
				stats.ObjectTypes, stats.FactTypes, stats.Origins)
			return err
		},
	}
}
