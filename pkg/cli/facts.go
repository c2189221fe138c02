package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/services"
)

// SaveFactOptions holds flags for the save-fact command.
type SaveFactOptions struct {
	*RootOptions
	Type          string
	Value         string
	Source        string
	Destination   string
	Bidirectional bool
	InReferenceTo string
	Origin        string
	Organization  string
	User          string
	AccessMode    string
	Confidence    float64
	Trust         float64
	Comment       string
	Acl           []string
}

// NewSaveFactCommand creates the save-fact command.
func NewSaveFactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveFactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save-fact",
		Short: "Store a Fact or refresh the identical existing one",
		Long: `Save a Fact. Objects are given as an id or as type/value and are created when missing.

When a Fact with the same content already exists it is refreshed instead: its last seen
timestamp moves to now and the given ACL subjects and comment are added to it.

Examples:
  factgraph save-fact --type seenIn --source threatActor/apt28 --destination ip/1.2.3.4 --origin osint-feed
  factgraph save-fact --type observation --in-reference-to 6f1c... --value confirmed --origin osint-feed
  factgraph save-fact --type name --source ip/1.2.3.4 --value edge --access Explicit --acl 0e2a... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSaveFact(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "FactType name (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Value, "value", "", "Fact value")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source Object as id or type/value")
	cmd.Flags().StringVar(&opts.Destination, "destination", "", "destination Object as id or type/value")
	cmd.Flags().BoolVar(&opts.Bidirectional, "bidirectional", false, "bind the Objects in both directions")
	cmd.Flags().StringVar(&opts.InReferenceTo, "in-reference-to", "", "id of the Fact a meta Fact references")
	cmd.Flags().StringVar(&opts.Origin, "origin", "", "Origin name or id (required)")
	_ = cmd.MarkFlagRequired("origin")
	cmd.Flags().StringVar(&opts.Organization, "organization", "", "organization id, defaults to the Origin's organization")
	cmd.Flags().StringVar(&opts.User, "user", "", "id of the submitting user")
	cmd.Flags().StringVar(&opts.AccessMode, "access", string(models.AccessModeRoleBased), "access mode (Public|RoleBased|Explicit)")
	cmd.Flags().Float64Var(&opts.Confidence, "confidence", -1, "confidence in [0, 1], defaults to the FactType's")
	cmd.Flags().Float64Var(&opts.Trust, "trust", -1, "trust in [0, 1], defaults to the Origin's")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment attached to the Fact")
	cmd.Flags().StringSliceVar(&opts.Acl, "acl", nil, "subject ids granted access unless the Fact is Public")

	return cmd
}

func runSaveFact(cmd *cobra.Command, opts *SaveFactOptions) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	record, saveOpts, err := buildFact(ctx, app, opts)
	if err != nil {
		return err
	}

	saved, err := app.Store.SaveFact(ctx, record, saveOpts)
	if err != nil {
		return err
	}
	return writeFact(cmd.OutOrStdout(), opts.Format, saved)
}

func buildFact(ctx context.Context, app *App, opts *SaveFactOptions) (*models.FactRecord, services.SaveFactOptions, error) {
	var saveOpts services.SaveFactOptions

	factType := app.Facts.GetFactTypeByName(ctx, opts.Type)
	if factType == nil {
		return nil, saveOpts, fmt.Errorf("fact type %q: %w", opts.Type, apperrors.ErrNotFound)
	}
	origin, err := resolveOrigin(ctx, app, opts.Origin)
	if err != nil {
		return nil, saveOpts, err
	}
	accessMode := models.AccessMode(opts.AccessMode)
	if _, err := accessMode.Code(); err != nil {
		return nil, saveOpts, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	now := time.Now().UTC()
	record := &models.FactRecord{
		ID:                uuid.New(),
		TypeID:            factType.ID,
		Value:             opts.Value,
		OriginID:          origin.ID,
		AccessMode:        accessMode,
		Trust:             origin.Trust,
		Confidence:        factType.DefaultConfidence,
		Timestamp:         now,
		LastSeenTimestamp: now,
		Bidirectional:     opts.Bidirectional,
	}
	if opts.Trust >= 0 {
		record.Trust = opts.Trust
	}
	if opts.Confidence >= 0 {
		record.Confidence = opts.Confidence
	}
	if record.Trust > 1 || record.Confidence > 1 {
		return nil, saveOpts, fmt.Errorf("trust and confidence must be within [0, 1]: %w", apperrors.ErrValidation)
	}

	switch {
	case opts.Organization != "":
		if record.OrganizationID, err = uuid.Parse(opts.Organization); err != nil {
			return nil, saveOpts, fmt.Errorf("invalid --organization: %w", err)
		}
	case origin.OrganizationID != nil:
		record.OrganizationID = *origin.OrganizationID
	default:
		return nil, saveOpts, fmt.Errorf("origin %q has no organization, pass --organization: %w", origin.Name, apperrors.ErrValidation)
	}

	if opts.User != "" {
		if saveOpts.CurrentUserID, err = uuid.Parse(opts.User); err != nil {
			return nil, saveOpts, fmt.Errorf("invalid --user: %w", err)
		}
	}
	record.AddedByID = saveOpts.CurrentUserID
	record.LastSeenByID = saveOpts.CurrentUserID

	if opts.InReferenceTo != "" {
		id, err := uuid.Parse(opts.InReferenceTo)
		if err != nil {
			return nil, saveOpts, fmt.Errorf("invalid --in-reference-to: %w", err)
		}
		if app.Store.GetFact(ctx, id) == nil {
			return nil, saveOpts, fmt.Errorf("referenced fact %s: %w", id, apperrors.ErrNotFound)
		}
		record.InReferenceToID = &id
	}

	if opts.Source != "" {
		if record.SourceObject, err = app.Store.ResolveObject(ctx, opts.Source); err != nil {
			return nil, saveOpts, err
		}
	}
	if opts.Destination != "" {
		if record.DestinationObject, err = app.Store.ResolveObject(ctx, opts.Destination); err != nil {
			return nil, saveOpts, err
		}
	}
	if record.InReferenceToID == nil && record.SourceObject == nil && record.DestinationObject == nil {
		return nil, saveOpts, fmt.Errorf("a fact needs --source, --destination or --in-reference-to: %w", apperrors.ErrValidation)
	}

	if saveOpts.SubjectIDs, err = parseIDs(opts.Acl); err != nil {
		return nil, saveOpts, err
	}
	saveOpts.Comment = opts.Comment
	return record, saveOpts, nil
}

func resolveOrigin(ctx context.Context, app *App, ref string) (*models.OriginEntity, error) {
	var origin *models.OriginEntity
	if id, err := uuid.Parse(ref); err == nil {
		origin = app.Origins.GetOrigin(ctx, id)
	} else {
		origin = app.Origins.GetOriginByName(ctx, ref)
	}
	if origin == nil {
		return nil, fmt.Errorf("origin %q: %w", ref, apperrors.ErrNotFound)
	}
	return origin, nil
}

// ShowFactOptions holds flags for the show-fact command.
type ShowFactOptions struct {
	*RootOptions
	Meta bool
}

// NewShowFactCommand creates the show-fact command.
func NewShowFactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowFactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show-fact <id>...",
		Short: "Print Facts by id",
		Long: `Print Facts with their bound Objects, ACL and comments.

Examples:
  factgraph show-fact 6f1c2d8e-...
  factgraph show-fact 6f1c2d8e-... --meta --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, id := range ids {
				fact := app.Store.GetFact(ctx, id)
				if fact == nil {
					return fmt.Errorf("fact %s: %w", id, apperrors.ErrNotFound)
				}
				if err := writeFact(cmd.OutOrStdout(), opts.Format, fact); err != nil {
					return err
				}
				if !opts.Meta {
					continue
				}
				metaFacts, err := app.Store.RetrieveMetaFacts(ctx, id)
				if err != nil {
					return err
				}
				for _, meta := range metaFacts {
					if err := writeFact(cmd.OutOrStdout(), opts.Format, meta); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Meta, "meta", false, "also print the meta Facts referencing each Fact")

	return cmd
}

// RetractOptions holds flags for the retract command.
type RetractOptions struct {
	*RootOptions
	User    string
	Comment string
}

// NewRetractCommand creates the retract command.
func NewRetractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retract <id>",
		Short: "Retract a Fact",
		Long: `Save a Retraction meta Fact referencing the Fact and flag the Fact as retracted.

The retraction inherits the access mode, organization and origin of the retracted Fact.

Examples:
  factgraph retract 6f1c2d8e-... --user 0e2a... --comment "false positive"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid fact id %q: %w", args[0], err)
			}
			saveOpts := services.SaveFactOptions{Comment: opts.Comment}
			if opts.User != "" {
				if saveOpts.CurrentUserID, err = uuid.Parse(opts.User); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()

			fact := app.Store.GetFact(ctx, id)
			if fact == nil {
				return fmt.Errorf("fact %s: %w", id, apperrors.ErrNotFound)
			}
			retraction, err := app.Store.Retract(ctx, fact, saveOpts)
			if err != nil {
				return err
			}
			return writeFact(cmd.OutOrStdout(), opts.Format, retraction)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "id of the retracting user")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment attached to the retraction")

	return cmd
}
