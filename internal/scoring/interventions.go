package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// CreateInterventionRequest is the input to CreateIntervention.
type CreateInterventionRequest struct {
	UnitID           string         `json:"unit_id"`
	InterventionType string         `json:"intervention_type"`
	StartDate        string         `json:"start_date"`
	EndDate          *string        `json:"end_date"`
	Note             string         `json:"note"`
	CreatedBy        string         `json:"created_by"`
	Meta             map[string]any `json:"meta"`
}

func (r CreateInterventionRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.UnitID) == "" {
		missing = append(missing, "unit_id")
	}
	if strings.TrimSpace(r.InterventionType) == "" {
		missing = append(missing, "intervention_type")
	}
	if strings.TrimSpace(r.StartDate) == "" {
		missing = append(missing, "start_date")
	}
	if strings.TrimSpace(r.CreatedBy) == "" {
		missing = append(missing, "created_by")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	if _, err := domain.ParseDate(r.StartDate); err != nil {
		return err
	}
	if r.EndDate != nil {
		if _, err := domain.ParseDate(*r.EndDate); err != nil {
			return err
		}
		if *r.EndDate < r.StartDate {
			return fmt.Errorf("%w: end_date %s is before start_date %s", domain.ErrInvalidArgument, *r.EndDate, r.StartDate)
		}
	}
	return nil
}

// CreateIntervention validates and stores a new intervention for an existing unit.
func (s *Service) CreateIntervention(ctx context.Context, req CreateInterventionRequest) (domain.Intervention, error) {
	if err := req.validate(); err != nil {
		return domain.Intervention{}, err
	}
	if _, err := s.repo.FindSpatialUnit(ctx, req.UnitID); err != nil {
		return domain.Intervention{}, err
	}

	iv := domain.Intervention{
		ID:               uuid.NewString(),
		UnitID:           req.UnitID,
		InterventionType: req.InterventionType,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Note:             req.Note,
		CreatedBy:        req.CreatedBy,
		Meta:             req.Meta,
		CreatedAt:        domain.Now(),
	}
	if err := s.repo.SaveIntervention(ctx, iv); err != nil {
		return domain.Intervention{}, fmt.Errorf("save intervention: %w", err)
	}
	s.logger.Info("intervention created",
		"intervention_id", iv.ID,
		"unit_id", iv.UnitID,
		"type", iv.InterventionType,
		"start_date", iv.StartDate,
	)
	return iv, nil
}

// ListInterventions returns interventions newest start date first, capped
// at the shared result limit.
func (s *Service) ListInterventions(ctx context.Context, unitID string) ([]domain.Intervention, error) {
	return s.repo.ListInterventions(ctx, strings.TrimSpace(unitID), domain.MaxResults)
}

// ParseInterventionID canonicalizes an intervention id, rejecting anything
// that is not a UUID with ErrInvalidID.
func ParseInterventionID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a UUID", domain.ErrInvalidID, raw)
	}
	return id.String(), nil
}

// GetTracking returns the before and after score series of an intervention.
// A malformed id fails with ErrInvalidID, an unknown one with ErrNotFound.
func (s *Service) GetTracking(ctx context.Context, interventionID string, baselineWeeks, followupWeeks int) (domain.TrackingResponse, error) {
	id, err := ParseInterventionID(interventionID)
	if err != nil {
		return domain.TrackingResponse{}, err
	}
	if err := domain.ValidateWeeks("baseline_weeks", baselineWeeks); err != nil {
		return domain.TrackingResponse{}, err
	}
	if err := domain.ValidateWeeks("followup_weeks", followupWeeks); err != nil {
		return domain.TrackingResponse{}, err
	}
	iv, err := s.repo.FindIntervention(ctx, id)
	if err != nil {
		return domain.TrackingResponse{}, err
	}

	window, err := domain.ComputeTrackingWindow(iv, domain.Now(), baselineWeeks, followupWeeks)
	if err != nil {
		return domain.TrackingResponse{}, err
	}

	baseline, err := s.series(ctx, iv.UnitID, window.Baseline)
	if err != nil {
		return domain.TrackingResponse{}, err
	}
	followup, err := s.series(ctx, iv.UnitID, window.Followup)
	if err != nil {
		return domain.TrackingResponse{}, err
	}

	return domain.TrackingResponse{
		InterventionID: iv.ID,
		UnitID:         iv.UnitID,
		Window:         window,
		BaselinePeriod: baseline,
		FollowupPeriod: followup,
		Summary:        domain.Summarize(baseline, followup),
		Intervention:   iv,
	}, nil
}

func (s *Service) series(ctx context.Context, unitID string, r domain.DateRange) ([]domain.TrackingDataPoint, error) {
	if r.Empty() {
		return []domain.TrackingDataPoint{}, nil
	}
	records, err := s.repo.FindScoresInRange(ctx, unitID, r)
	if err != nil {
		return nil, fmt.Errorf("find scores in range: %w", err)
	}
	return domain.TrackingSeries(records, r), nil
}
