package application

import (
	"context"

	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/models"
)

// allowedTransitions is the explicit review state machine. Anything not
// listed is rejected with INVALID_TRANSITION.
var allowedTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusSubmitted:   {models.StatusUnderReview, models.StatusApproved, models.StatusRejected},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected},
}

func transitionAllowed(from, to models.ApplicationStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ReviewInput carries one admin review decision.
type ReviewInput struct {
	ApplicationID   string
	ReviewerID      string
	NewStatus       models.ApplicationStatus
	Notes           string
	RejectionReason string
}

// Review applies an admin decision: submitted applications can move to
// under_review, approved, or rejected; under_review to approved or rejected.
// Rejection always requires a reason the applicant will see.
func (s *Service) Review(ctx context.Context, input ReviewInput) (*models.Application, error) {
	switch input.NewStatus {
	case models.StatusUnderReview, models.StatusApproved, models.StatusRejected:
	default:
		return nil, errors.NewValidationFailedError("unsupported review status: "+string(input.NewStatus), nil)
	}
	if input.NewStatus == models.StatusRejected && input.RejectionReason == "" {
		return nil, errors.NewValidationFailedError("rejection requires a reason", []errors.FieldError{
			{Field: "rejectionReason", Message: "required when status is rejected"},
		})
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		app, err := s.store.GetByID(ctx, input.ApplicationID)
		if err != nil {
			return nil, err
		}
		if !transitionAllowed(app.Status, input.NewStatus) {
			return nil, errors.NewInvalidTransitionError(string(app.Status), string(input.NewStatus))
		}

		app.Status = input.NewStatus
		app.ReviewNotes = input.Notes
		if input.NewStatus == models.StatusRejected {
			app.RejectionReason = input.RejectionReason
		} else {
			app.RejectionReason = ""
		}

		if err := s.store.UpdateReview(ctx, app, profileStatusFor(input.NewStatus), input.ReviewerID); err != nil {
			if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Code == errors.ErrCodeVersionConflict {
				lastErr = err
				continue
			}
			return nil, err
		}

		s.logger.Info("application reviewed", map[string]interface{}{
			"applicationId": app.ID,
			"status":        app.Status,
			"reviewerId":    input.ReviewerID,
		})

		switch input.NewStatus {
		case models.StatusApproved:
			s.indexProfile(ctx, buildProfileForStatus(app, models.ProfileApproved))
			s.notifyOwner(ctx, app, func(owner *models.Owner) error {
				return s.notifier.ApplicationApproved(ctx, owner, app)
			})
		case models.StatusRejected:
			s.notifyOwner(ctx, app, func(owner *models.Owner) error {
				return s.notifier.ApplicationRejected(ctx, owner, app)
			})
		}
		return app, nil
	}
	return nil, lastErr
}

func profileStatusFor(status models.ApplicationStatus) models.ProfileStatus {
	switch status {
	case models.StatusApproved:
		return models.ProfileApproved
	case models.StatusRejected:
		return models.ProfileRejected
	default:
		return models.ProfileSubmitted
	}
}

func buildProfileForStatus(app *models.Application, status models.ProfileStatus) *models.TechnicianProfile {
	profile := buildProfile(app)
	profile.Status = status
	return profile
}

// VerifyDocument marks one uploaded document as verified by an admin. The
// flag lives inside the stored reference so the detail view and search
// indexing see it without a join.
func (s *Service) VerifyDocument(ctx context.Context, applicationID, field, reviewerID string) (*models.Application, error) {
	step, _ := StepByName(StepDocuments)
	known := false
	for _, f := range step.FileFields {
		if f == field {
			known = true
			break
		}
	}
	if !known {
		return nil, errors.NewValidationFailedError("unknown document field: "+field, nil)
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		app, err := s.store.GetByID(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		ref, ok := app.Documents[field].(map[string]interface{})
		if !ok {
			return nil, errors.NewNotFoundError("document", field)
		}
		ref["verified"] = true
		app.Documents[field] = ref

		if err := s.store.Update(ctx, app); err != nil {
			if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Code == errors.ErrCodeVersionConflict {
				lastErr = err
				continue
			}
			return nil, err
		}

		s.logger.Info("document verified", map[string]interface{}{
			"applicationId": applicationID,
			"field":         field,
			"reviewerId":    reviewerID,
		})
		return app, nil
	}
	return nil, lastErr
}
