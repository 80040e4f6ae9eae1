package application

import (
	"context"
	"time"

	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/metrics"
	"localpro-backend/internal/models"

	"github.com/google/uuid"
)

// Submit runs the submission gate: every required step complete, agreement
// accepted, editable status. On success it flips the application to
// submitted, materializes the technician profile, and writes the audit
// record in one transaction; search indexing and the confirmation
// notification run post-commit and never fail the request.
func (s *Service) Submit(ctx context.Context, applicationID, ownerID string) (*models.Application, error) {
	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		app, err := s.store.GetByID(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		if app.OwnerID != ownerID {
			return nil, errors.NewForbiddenError("application belongs to another user")
		}

		switch app.Status {
		case models.StatusDraft:
		case models.StatusRejected:
			return nil, errors.NewPreconditionFailedError(
				"rejected application must be edited before resubmitting")
		default:
			return nil, errors.NewPreconditionFailedError(
				"application already submitted in status " + string(app.Status))
		}

		if missing := MissingSteps(app); len(missing) > 0 {
			metrics.ApplicationSubmissions.WithLabelValues("incomplete").Inc()
			return nil, errors.NewIncompleteApplicationError(missing)
		}
		if !app.Agreement {
			metrics.ApplicationSubmissions.WithLabelValues("incomplete").Inc()
			return nil, errors.NewPreconditionFailedError("agreement not accepted")
		}

		now := time.Now().UTC()
		app.Status = models.StatusSubmitted
		if app.SubmittedAt == nil {
			app.SubmittedAt = &now
		}
		app.LastSubmittedAt = &now
		if app.WasRejected {
			app.ResubmittedCount++
		}

		profile := buildProfile(app)
		if err := s.store.Submit(ctx, app, profile); err != nil {
			if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Code == errors.ErrCodeVersionConflict {
				lastErr = err
				continue
			}
			metrics.ApplicationSubmissions.WithLabelValues("failure").Inc()
			return nil, err
		}

		metrics.ApplicationSubmissions.WithLabelValues("success").Inc()
		s.logger.Info("application submitted", map[string]interface{}{
			"applicationId":    app.ID,
			"ownerId":          app.OwnerID,
			"resubmittedCount": app.ResubmittedCount,
		})

		s.indexProfile(ctx, profile)
		s.notifyOwner(ctx, app, func(owner *models.Owner) error {
			return s.notifier.ApplicationSubmitted(ctx, owner, app)
		})
		return app, nil
	}
	return nil, lastErr
}

// buildProfile materializes the platform-facing technician profile from the
// application sub-documents.
func buildProfile(app *models.Application) *models.TechnicianProfile {
	fullName := stringField(app.Personal, "firstName")
	if last := stringField(app.Personal, "lastName"); last != "" {
		if fullName != "" {
			fullName += " "
		}
		fullName += last
	}

	email := stringField(app.Personal, "email")
	if email == "" {
		email = app.ContactInfo
	}

	var pictureURL string
	if ref, ok := app.Documents[FieldPassportPhoto].(map[string]interface{}); ok {
		pictureURL = stringField(ref, "url")
	}

	return &models.TechnicianProfile{
		ID:                uuid.New().String(),
		OwnerID:           app.OwnerID,
		ApplicationID:     app.ID,
		FullName:          fullName,
		Email:             email,
		Phone:             stringField(app.Personal, "phone"),
		City:              stringField(app.Personal, "city"),
		Skills:            app.Skills,
		Bank:              app.Bank,
		ProfilePictureURL: pictureURL,
		Status:            models.ProfileSubmitted,
	}
}

func (s *Service) indexProfile(ctx context.Context, profile *models.TechnicianProfile) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexProfile(ctx, profile); err != nil {
		s.logger.WithError(err).Error("profile indexing failed", map[string]interface{}{
			"applicationId": profile.ApplicationID,
		})
	}
}

// notifyOwner resolves the owner's contact record and invokes send. Both the
// lookup and the delivery are best-effort.
func (s *Service) notifyOwner(ctx context.Context, app *models.Application, send func(*models.Owner) error) {
	if s.notifier == nil {
		return
	}
	owner, err := s.store.GetOwner(ctx, app.OwnerID)
	if err != nil {
		s.logger.WithError(err).Warn("owner lookup for notification failed", map[string]interface{}{
			"applicationId": app.ID,
		})
		return
	}
	if err := send(owner); err != nil {
		s.logger.WithError(err).Error("notification delivery failed", map[string]interface{}{
			"applicationId": app.ID,
		})
	}
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
