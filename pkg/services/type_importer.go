package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
)

// DefaultValidator accepts every value.
const DefaultValidator = "TrueValidator"

// TypeDocument is the YAML form of a set of ObjectTypes, FactTypes and Origins.
// Types and Origins reference each other by name.
type TypeDocument struct {
	ObjectTypes []ObjectTypeSpec `yaml:"object_types"`
	FactTypes   []FactTypeSpec   `yaml:"fact_types"`
	Origins     []OriginSpec     `yaml:"origins"`
}

type ObjectTypeSpec struct {
	Name               string `yaml:"name"`
	Validator          string `yaml:"validator"`
	ValidatorParameter string `yaml:"validator_parameter"`
}

type FactTypeSpec struct {
	Name               string              `yaml:"name"`
	Validator          string              `yaml:"validator"`
	ValidatorParameter string              `yaml:"validator_parameter"`
	DefaultConfidence  *float64            `yaml:"default_confidence"`
	ObjectBindings     []ObjectBindingSpec `yaml:"object_bindings"`
	// FactBindings names the FactTypes a meta Fact of this type may reference.
	FactBindings []string `yaml:"fact_bindings"`
}

// ObjectBindingSpec names the ObjectTypes on each side. An empty side binds a single Object.
type ObjectBindingSpec struct {
	Source        string `yaml:"source"`
	Destination   string `yaml:"destination"`
	Bidirectional bool   `yaml:"bidirectional"`
}

type OriginSpec struct {
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Trust          *float64          `yaml:"trust"`
	Type           models.OriginType `yaml:"type"`
	OrganizationID *uuid.UUID        `yaml:"organization_id"`
}

// ParseTypeDocument decodes a TypeDocument, rejecting unknown keys.
func ParseTypeDocument(r io.Reader) (*TypeDocument, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc TypeDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to parse type document: %w", errors.Join(apperrors.ErrValidation, err))
	}
	return &doc, nil
}

// ImportStats counts the entries written by TypeImporter.
type ImportStats struct {
	ObjectTypes int
	FactTypes   int
	Origins     int
}

// TypeImporter upserts a TypeDocument. Entries that already exist by name keep their id.
type TypeImporter struct {
	facts   repositories.FactRepository
	objects repositories.ObjectRepository
	origins repositories.OriginRepository
	logger  *zap.Logger
}

func NewTypeImporter(facts repositories.FactRepository, objects repositories.ObjectRepository, origins repositories.OriginRepository, logger *zap.Logger) *TypeImporter {
	return &TypeImporter{
		facts:   facts,
		objects: objects,
		origins: origins,
		logger:  logger.Named("type-importer"),
	}
}

// Import validates doc and writes ObjectTypes, then FactTypes, then Origins.
func (i *TypeImporter) Import(ctx context.Context, doc *TypeDocument) (ImportStats, error) {
	var stats ImportStats
	if err := validateTypeDocument(doc); err != nil {
		return stats, err
	}

	for _, def := range doc.ObjectTypes {
		t := &models.ObjectTypeEntity{
			ID:                 uuid.New(),
			Name:               def.Name,
			Validator:          orDefault(def.Validator, DefaultValidator),
			ValidatorParameter: def.ValidatorParameter,
		}
		if existing := i.objects.GetObjectTypeByName(ctx, def.Name); existing != nil {
			t.ID = existing.ID
			t.NamespaceID = existing.NamespaceID
		}
		if _, err := i.objects.SaveObjectType(ctx, t); err != nil {
			return stats, fmt.Errorf("failed to save object type %q: %w", def.Name, err)
		}
		stats.ObjectTypes++
	}

	// Ids are settled first so FactTypes in one document can reference each other.
	existingFactTypes := make(map[string]*models.FactTypeEntity, len(doc.FactTypes))
	factTypeIDs := make(map[string]uuid.UUID, len(doc.FactTypes))
	for _, def := range doc.FactTypes {
		if existing := i.facts.GetFactTypeByName(ctx, def.Name); existing != nil {
			existingFactTypes[def.Name] = existing
			factTypeIDs[def.Name] = existing.ID
		} else {
			factTypeIDs[def.Name] = uuid.New()
		}
	}

	for _, def := range doc.FactTypes {
		t, err := i.factType(ctx, def, factTypeIDs)
		if err != nil {
			return stats, err
		}
		if existing := existingFactTypes[def.Name]; existing != nil {
			t.NamespaceID = existing.NamespaceID
		}
		if _, err := i.facts.SaveFactType(ctx, t); err != nil {
			return stats, fmt.Errorf("failed to save fact type %q: %w", def.Name, err)
		}
		stats.FactTypes++
	}

	for _, def := range doc.Origins {
		o := &models.OriginEntity{
			ID:             uuid.New(),
			OrganizationID: def.OrganizationID,
			Name:           def.Name,
			Description:    def.Description,
			Trust:          0.8,
			Type:           def.Type,
		}
		if def.Trust != nil {
			o.Trust = *def.Trust
		}
		if o.Type == "" {
			o.Type = models.OriginTypeGroup
		}
		if existing := i.origins.GetOriginByName(ctx, def.Name); existing != nil {
			o.ID = existing.ID
			o.NamespaceID = existing.NamespaceID
			o.Flags = existing.Flags
		}
		if _, err := i.origins.SaveOrigin(ctx, o); err != nil {
			return stats, fmt.Errorf("failed to save origin %q: %w", def.Name, err)
		}
		stats.Origins++
	}

	i.logger.Info("Imported types",
		zap.Int("object_types", stats.ObjectTypes),
		zap.Int("fact_types", stats.FactTypes),
		zap.Int("origins", stats.Origins))
	return stats, nil
}

func (i *TypeImporter) factType(ctx context.Context, def FactTypeSpec, factTypeIDs map[string]uuid.UUID) (*models.FactTypeEntity, error) {
	t := &models.FactTypeEntity{
		ID:                 factTypeIDs[def.Name],
		Name:               def.Name,
		Validator:          orDefault(def.Validator, DefaultValidator),
		ValidatorParameter: def.ValidatorParameter,
		DefaultConfidence:  1.0,
	}
	if def.DefaultConfidence != nil {
		t.DefaultConfidence = *def.DefaultConfidence
	}

	for _, b := range def.ObjectBindings {
		source, err := i.objectTypeID(ctx, b.Source)
		if err != nil {
			return nil, fmt.Errorf("fact type %q: %w", def.Name, err)
		}
		destination, err := i.objectTypeID(ctx, b.Destination)
		if err != nil {
			return nil, fmt.Errorf("fact type %q: %w", def.Name, err)
		}
		t.RelevantObjectBindings = append(t.RelevantObjectBindings, models.FactObjectBindingDefinition{
			SourceObjectTypeID:      source,
			DestinationObjectTypeID: destination,
			BidirectionalBinding:    b.Bidirectional,
		})
	}

	for _, name := range def.FactBindings {
		id, ok := factTypeIDs[name]
		if !ok {
			existing := i.facts.GetFactTypeByName(ctx, name)
			if existing == nil {
				return nil, fmt.Errorf("fact type %q references unknown fact type %q: %w", def.Name, name, apperrors.ErrValidation)
			}
			id = existing.ID
		}
		t.RelevantFactBindings = append(t.RelevantFactBindings, models.MetaFactBindingDefinition{FactTypeID: id})
	}
	return t, nil
}

func (i *TypeImporter) objectTypeID(ctx context.Context, name string) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}
	t := i.objects.GetObjectTypeByName(ctx, name)
	if t == nil {
		return nil, fmt.Errorf("unknown object type %q: %w", name, apperrors.ErrValidation)
	}
	id := t.ID
	return &id, nil
}

func validateTypeDocument(doc *TypeDocument) error {
	var errs []error
	check := func(kind, name string) {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s without a name", kind))
		}
	}
	for _, t := range doc.ObjectTypes {
		check("object type", t.Name)
	}
	for _, t := range doc.FactTypes {
		check("fact type", t.Name)
		if t.DefaultConfidence != nil && (*t.DefaultConfidence < 0 || *t.DefaultConfidence > 1) {
			errs = append(errs, fmt.Errorf("fact type %q: default confidence must be within [0, 1]", t.Name))
		}
		for _, b := range t.ObjectBindings {
			if b.Source == "" && b.Destination == "" {
				errs = append(errs, fmt.Errorf("fact type %q: object binding without object types", t.Name))
			}
		}
	}
	for _, o := range doc.Origins {
		check("origin", o.Name)
		if o.Trust != nil && (*o.Trust < 0 || *o.Trust > 1) {
			errs = append(errs, fmt.Errorf("origin %q: trust must be within [0, 1]", o.Name))
		}
		if o.Type != "" {
			if _, err := o.Type.Code(); err != nil {
				errs = append(errs, fmt.Errorf("origin %q: %w", o.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{apperrors.ErrValidation}, errs...)...)
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
