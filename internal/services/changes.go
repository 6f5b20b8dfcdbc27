package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

// ApplyChangeInput describes one lifecycle event to record against a unit.
type ApplyChangeInput struct {
	UnitID         uuid.UUID
	Kind           string
	EffectiveDate  time.Time
	SupersededByID *uuid.UUID
	SourceRef      string
	Note           string
}

// ConsistencyIssue is one detected contradiction between a unit's validity
// interval and its recorded change history.
type ConsistencyIssue struct {
	UnitID   uuid.UUID  `json:"unit_id"`
	ChangeID *uuid.UUID `json:"change_id,omitempty"`
	Code     string     `json:"code"`
	Detail   string     `json:"detail"`
}

const (
	IssueInvertedInterval  = "inverted_interval"
	IssueEventBeforeStart  = "event_before_valid_from"
	IssueTerminalNotClosed = "terminal_change_not_closed"
)

// UnitTimeline is a unit together with its ordered change history.
type UnitTimeline struct {
	Unit    *types.LegalUnit    `json:"unit"`
	Changes []*types.UnitChange `json:"changes"`
}

type ChangeService interface {
	ApplyChange(ctx context.Context, input ApplyChangeInput) (*types.UnitChange, error)
	CheckConsistency(ctx context.Context, unitID uuid.UUID) ([]ConsistencyIssue, error)
	ActiveAsOf(ctx context.Context, documentID uuid.UUID, on time.Time) ([]*types.LegalUnit, error)
	Timeline(ctx context.Context, unitID uuid.UUID) (*UnitTimeline, error)
}

type changeService struct {
	db         *gorm.DB
	unitRepo   repos.LegalUnitRepo
	changeRepo repos.UnitChangeRepo
	embRepo    repos.EmbeddingRepo
	log        *logger.Logger
}

func NewChangeService(db *gorm.DB, unitRepo repos.LegalUnitRepo, changeRepo repos.UnitChangeRepo, embRepo repos.EmbeddingRepo, baseLog *logger.Logger) ChangeService {
	return &changeService{
		db:         db,
		unitRepo:   unitRepo,
		changeRepo: changeRepo,
		embRepo:    embRepo,
		log:        baseLog.With("service", "ChangeService"),
	}
}

// ApplyChange records a lifecycle event and applies its validity-interval
// effects in one transaction. Either the change row and every interval update
// land together or none of them do.
//
//	AMEND                record only
//	ADD                  set valid_from to the effective date if unset
//	REPEAL, REMOVE       close valid_to at the day before the effective date
//	SUBSTITUTE           close the unit as above, open the successor at the
//	                     effective date
func (s *changeService) ApplyChange(ctx context.Context, input ApplyChangeInput) (*types.UnitChange, error) {
	if !types.ValidChangeKind(input.Kind) {
		return nil, fmt.Errorf("unknown change kind %q", input.Kind)
	}

	effective := truncateToDate(input.EffectiveDate)
	if effective.IsZero() {
		return nil, fmt.Errorf("effective date required")
	}
	if effective.After(truncateToDate(time.Now().UTC())) {
		return nil, fmt.Errorf("effective date %s is in the future", effective.Format(dateLayout))
	}
	if input.Kind == types.ChangeSubstitute && input.SupersededByID == nil {
		return nil, fmt.Errorf("SUBSTITUTE requires a superseding unit")
	}

	var change *types.UnitChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unit, err := s.unitRepo.GetByID(ctx, tx, input.UnitID)
		if err != nil {
			return fmt.Errorf("load unit: %w", err)
		}

		if input.SupersededByID != nil {
			if _, err := s.unitRepo.GetByID(ctx, tx, *input.SupersededByID); err != nil {
				return fmt.Errorf("load superseding unit: %w", err)
			}
		}

		change = &types.UnitChange{
			UnitID:         unit.ID,
			Kind:           input.Kind,
			EffectiveDate:  effective,
			SupersededByID: input.SupersededByID,
			SourceRef:      input.SourceRef,
			Note:           input.Note,
		}
		if _, err := s.changeRepo.Create(ctx, tx, change); err != nil {
			return fmt.Errorf("record change: %w", err)
		}

		var boundsTouched []uuid.UUID

		switch input.Kind {
		case types.ChangeAmend:
			// History only; the interval is untouched.

		case types.ChangeAdd:
			if unit.ValidFrom == nil {
				if err := s.unitRepo.UpdateValidity(ctx, tx, unit.ID, &effective, unit.ValidTo); err != nil {
					return fmt.Errorf("open interval: %w", err)
				}
				boundsTouched = append(boundsTouched, unit.ID)
			}

		case types.ChangeRepeal, types.ChangeRemove:
			closed := effective.AddDate(0, 0, -1)
			if err := s.unitRepo.UpdateValidity(ctx, tx, unit.ID, unit.ValidFrom, &closed); err != nil {
				return fmt.Errorf("close interval: %w", err)
			}
			boundsTouched = append(boundsTouched, unit.ID)

		case types.ChangeSubstitute:
			closed := effective.AddDate(0, 0, -1)
			if err := s.unitRepo.UpdateValidity(ctx, tx, unit.ID, unit.ValidFrom, &closed); err != nil {
				return fmt.Errorf("close interval: %w", err)
			}
			boundsTouched = append(boundsTouched, unit.ID)
			successor, err := s.unitRepo.GetByID(ctx, tx, *input.SupersededByID)
			if err != nil {
				return fmt.Errorf("load superseding unit: %w", err)
			}
			if successor.ValidFrom == nil {
				if err := s.unitRepo.UpdateValidity(ctx, tx, successor.ID, &effective, successor.ValidTo); err != nil {
					return fmt.Errorf("open successor interval: %w", err)
				}
				boundsTouched = append(boundsTouched, successor.ID)
			}
		}

		// Validity bounds flow into chunk metadata, so every unit whose
		// interval moved needs a metadata re-check. Flagging inside the
		// transaction keeps the change and its follow-up atomic.
		if len(boundsTouched) > 0 {
			if _, err := s.embRepo.InvalidateMetadataByUnitIDs(ctx, tx, boundsTouched); err != nil {
				return fmt.Errorf("flag metadata: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Applied unit change",
		"unit_id", input.UnitID,
		"kind", input.Kind,
		"effective_date", effective.Format(dateLayout),
	)
	return change, nil
}

// CheckConsistency cross-checks a unit's interval against its change history
// and reports contradictions. It never mutates anything.
func (s *changeService) CheckConsistency(ctx context.Context, unitID uuid.UUID) ([]ConsistencyIssue, error) {
	unit, err := s.unitRepo.GetByID(ctx, nil, unitID)
	if err != nil {
		return nil, err
	}
	changes, err := s.changeRepo.ListByUnit(ctx, nil, unitID)
	if err != nil {
		return nil, err
	}

	issues := []ConsistencyIssue{}

	if unit.ValidFrom != nil && unit.ValidTo != nil && unit.ValidFrom.After(*unit.ValidTo) {
		issues = append(issues, ConsistencyIssue{
			UnitID: unit.ID,
			Code:   IssueInvertedInterval,
			Detail: fmt.Sprintf("valid_from %s is after valid_to %s",
				unit.ValidFrom.Format(dateLayout), unit.ValidTo.Format(dateLayout)),
		})
	}

	for _, ch := range changes {
		chID := ch.ID
		if unit.ValidFrom != nil && ch.EffectiveDate.Before(*unit.ValidFrom) {
			issues = append(issues, ConsistencyIssue{
				UnitID:   unit.ID,
				ChangeID: &chID,
				Code:     IssueEventBeforeStart,
				Detail: fmt.Sprintf("%s effective %s predates valid_from %s",
					ch.Kind, ch.EffectiveDate.Format(dateLayout), unit.ValidFrom.Format(dateLayout)),
			})
		}
		if ch.Kind == types.ChangeRepeal || ch.Kind == types.ChangeSubstitute {
			if unit.ValidTo == nil || !unit.ValidTo.Before(ch.EffectiveDate) {
				issues = append(issues, ConsistencyIssue{
					UnitID:   unit.ID,
					ChangeID: &chID,
					Code:     IssueTerminalNotClosed,
					Detail: fmt.Sprintf("%s effective %s but interval is not closed before it",
						ch.Kind, ch.EffectiveDate.Format(dateLayout)),
				})
			}
		}
	}
	return issues, nil
}

func (s *changeService) ActiveAsOf(ctx context.Context, documentID uuid.UUID, on time.Time) ([]*types.LegalUnit, error) {
	return s.unitRepo.ActiveAsOf(ctx, nil, documentID, truncateToDate(on))
}

func (s *changeService) Timeline(ctx context.Context, unitID uuid.UUID) (*UnitTimeline, error) {
	unit, err := s.unitRepo.GetByID(ctx, nil, unitID)
	if err != nil {
		return nil, err
	}
	changes, err := s.changeRepo.ListByUnit(ctx, nil, unitID)
	if err != nil {
		return nil, err
	}
	return &UnitTimeline{Unit: unit, Changes: changes}, nil
}

func truncateToDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
