package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// SaveFact serializes on the content hash so concurrent submissions of the same Fact
// result in one store followed by refreshes.
func (s *objectFactStore) SaveFact(ctx context.Context, record *models.FactRecord, opts SaveFactOptions) (_ *models.FactRecord, err error) {
	if record == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("save_fact", start, err) }(time.Now())

	hash := models.FactHash(record)
	lk, err := s.locks.Acquire(ctx, factLockRegion, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to lock fact hash %s: %w", hash, err)
	}
	defer s.release(ctx, lk, factLockRegion)

	existing := s.RetrieveExistingFact(ctx, record)

	effective := record
	if existing != nil {
		effective = existing.Clone()
	}
	now := s.now().UTC()
	withAcl(effective, opts.CurrentUserID, opts.SubjectIDs, now)
	withComment(effective, opts.Comment, now)

	if existing != nil {
		effective.LastSeenTimestamp = now
		effective.LastSeenByID = opts.CurrentUserID
		s.logger.Debug("Refreshing existing fact",
			zap.String("fact_id", effective.ID.String()),
			zap.String("fact_hash", hash))
		return s.RefreshFact(ctx, effective)
	}
	return s.StoreFact(ctx, effective)
}

func (s *objectFactStore) Retract(ctx context.Context, fact *models.FactRecord, opts SaveFactOptions) (*models.FactRecord, error) {
	if fact == nil {
		return nil, nil
	}

	now := s.now().UTC()
	retracted := fact.ID
	retraction := &models.FactRecord{
		TypeID:            models.RetractionFactTypeID,
		InReferenceToID:   &retracted,
		OrganizationID:    fact.OrganizationID,
		OriginID:          fact.OriginID,
		AddedByID:         opts.CurrentUserID,
		LastSeenByID:      opts.CurrentUserID,
		AccessMode:        fact.AccessMode,
		Trust:             fact.Trust,
		Confidence:        1.0,
		Timestamp:         now,
		LastSeenTimestamp: now,
	}
	// Retractions must be visible regardless of the searched time window.
	retraction.AddFlag(models.FactRecordFlagTimeGlobalIndex)

	saved, err := s.SaveFact(ctx, retraction, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to save retraction of fact %s: %w", fact.ID, err)
	}

	if _, err := s.RetractFact(ctx, fact.Clone()); err != nil {
		return nil, err
	}

	s.logger.Info("Retracted fact",
		zap.String("fact_id", fact.ID.String()),
		zap.String("retraction_id", saved.ID.String()))
	return saved, nil
}

// withAcl adds subjects to the ACL of a non-Public Fact, skipping subjects already present.
// The current user is always added to an Explicit Fact.
func withAcl(fact *models.FactRecord, currentUser uuid.UUID, subjects []uuid.UUID, now time.Time) {
	if fact.AccessMode == models.AccessModePublic {
		return
	}

	add := func(subject uuid.UUID) {
		if subject == uuid.Nil || fact.HasAclSubject(subject) {
			return
		}
		fact.AddAclEntry(&models.FactAclEntryRecord{
			ID:        uuid.New(),
			SubjectID: subject,
			OriginID:  fact.OriginID,
			Timestamp: now,
		})
	}

	for _, subject := range subjects {
		add(subject)
	}
	if fact.AccessMode == models.AccessModeExplicit {
		add(currentUser)
	}
}

func withComment(fact *models.FactRecord, comment string, now time.Time) {
	if strings.TrimSpace(comment) == "" {
		return
	}
	fact.AddComment(&models.FactCommentRecord{
		ID:        uuid.New(),
		OriginID:  fact.OriginID,
		Comment:   comment,
		Timestamp: now,
	})
}
