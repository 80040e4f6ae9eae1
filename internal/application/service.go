package application

import (
	"context"
	"io"

	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/common/validation"
	"localpro-backend/internal/models"
	"localpro-backend/internal/storage"
)

// maxVersionRetries bounds the re-read-and-retry loop on optimistic
// version conflicts.
const maxVersionRetries = 3

// ProfileIndexer pushes approved-or-submitted profiles into the search
// index. Implemented by internal/search.
type ProfileIndexer interface {
	IndexProfile(ctx context.Context, profile *models.TechnicianProfile) error
}

// Notifier delivers lifecycle notifications to applicants. Implemented by
// internal/notify.
type Notifier interface {
	ApplicationSubmitted(ctx context.Context, owner *models.Owner, app *models.Application) error
	ApplicationApproved(ctx context.Context, owner *models.Owner, app *models.Application) error
	ApplicationRejected(ctx context.Context, owner *models.Owner, app *models.Application) error
}

// Service orchestrates the application workflow on top of the store. The
// indexer and notifier run post-commit and never fail the request.
type Service struct {
	store    *Store
	blobs    storage.BlobStore
	indexer  ProfileIndexer
	notifier Notifier
	logger   logger.Logger
}

func NewService(store *Store, blobs storage.BlobStore, indexer ProfileIndexer, notifier Notifier, log logger.Logger) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		indexer:  indexer,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "application-service"}),
	}
}

// Start opens (or resumes) the owner's application draft.
func (s *Service) Start(ctx context.Context, ownerID, contactInfo string) (*models.Application, bool, error) {
	return s.store.Start(ctx, ownerID, contactInfo)
}

// Get loads one application. Non-admin requesters can only see their own.
func (s *Service) Get(ctx context.Context, applicationID, requesterID string, admin bool) (*models.Application, error) {
	app, err := s.store.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !admin && app.OwnerID != requesterID {
		return nil, errors.NewForbiddenError("application belongs to another user")
	}
	return app, nil
}

// ListByOwner returns the requester's applications, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*models.Application, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// DocumentStatuses computes the per-field submitted/verified view returned
// alongside the application detail.
func (s *Service) DocumentStatuses(app *models.Application) map[string]models.DocumentStatus {
	step, _ := StepByName(StepDocuments)
	out := make(map[string]models.DocumentStatus, len(step.FileFields))
	for _, field := range step.FileFields {
		status := models.DocumentStatus{}
		if ref, ok := app.Documents[field].(map[string]interface{}); ok {
			status.Submitted = true
			status.Verified, _ = ref["verified"].(bool)
		}
		out[field] = status
	}
	return out
}

// UploadedFile is one multipart file attached to a step save.
type UploadedFile struct {
	Field    string
	Filename string
	MimeType string
	Content  io.Reader
}

// SaveStepInput carries one step save request.
type SaveStepInput struct {
	ApplicationID string
	OwnerID       string
	Step          string
	Payload       map[string]interface{}
	Files         []UploadedFile
}

// SaveStepResult is the updated application plus any per-field upload
// failures. Upload failures do not abort the save; the field is simply
// omitted and reported.
type SaveStepResult struct {
	Application  *models.Application `json:"application"`
	UploadErrors map[string]string   `json:"uploadErrors,omitempty"`
}

// SaveStep validates, merges, and persists one step of the application.
// Saving a step on a rejected application reopens it as a draft. Version
// conflicts are retried against a fresh read.
func (s *Service) SaveStep(ctx context.Context, input SaveStepInput) (*SaveStepResult, error) {
	step, ok := StepByName(input.Step)
	if !ok {
		return nil, errors.NewInvalidStepError(input.Step)
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		app, err := s.store.GetByID(ctx, input.ApplicationID)
		if err != nil {
			return nil, err
		}
		if app.OwnerID != input.OwnerID {
			return nil, errors.NewForbiddenError("application belongs to another user")
		}

		switch app.Status {
		case models.StatusDraft:
		case models.StatusRejected:
			// First edit after rejection reopens the draft and arms the
			// resubmission counter.
			app.Status = models.StatusDraft
			app.RejectionReason = ""
			app.ReviewNotes = ""
			app.WasRejected = true
		default:
			return nil, errors.NewPreconditionFailedError(
				"application is not editable in status " + string(app.Status))
		}

		if err := s.applyStep(app, step, input.Payload); err != nil {
			return nil, err
		}

		uploadErrors := s.attachFiles(ctx, app, step, input.Files)

		if !app.HasCompletedStep(step.Name) {
			app.StepsCompleted = append(app.StepsCompleted, step.Name)
		}

		if err := s.store.Update(ctx, app); err != nil {
			if stdErr, ok := errors.AsStandardError(err); ok && stdErr.Code == errors.ErrCodeVersionConflict {
				lastErr = err
				continue
			}
			return nil, err
		}
		return &SaveStepResult{Application: app, UploadErrors: uploadErrors}, nil
	}
	return nil, lastErr
}

// applyStep merges the payload into the right sub-document and validates
// the merged result against the step schema. Validating post-merge is what
// allows partial re-submissions: the payload only needs to fill in what the
// stored sub-document does not already satisfy.
func (s *Service) applyStep(app *models.Application, step Step, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	switch step.Name {
	case StepAgreement:
		if err := validateAgainst(step, payload); err != nil {
			return err
		}
		app.Agreement = coerceBool(payload["accepted"])
	case StepReview:
		// Completion-only step; no payload is stored.
	default:
		merged := shallowMerge(sectionOf(app, step.Section), payload)
		if err := validateAgainst(step, merged); err != nil {
			return err
		}
		setSection(app, step.Section, merged)
	}
	return nil
}

func validateAgainst(step Step, doc map[string]interface{}) error {
	if step.Schema == nil {
		return nil
	}
	result, err := validation.ValidatePayload(doc, step.Schema)
	if err != nil {
		return errors.NewInternalError(err)
	}
	if result.Valid {
		return nil
	}
	fieldErrors := make([]errors.FieldError, 0, len(result.Errors))
	for _, ve := range result.Errors {
		fieldErrors = append(fieldErrors, errors.FieldError{
			Field:   ve.Field,
			Message: ve.Message,
		})
	}
	return errors.NewValidationFailedError("step: "+step.Name, fieldErrors)
}
