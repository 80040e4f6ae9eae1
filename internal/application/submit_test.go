package application

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/models"
)

// completeApp builds a draft that passes the submission gate.
func completeApp(id, ownerID string) *models.Application {
	app := draftApp(id, ownerID)
	app.Personal = validPersonal()
	app.Identity = map[string]interface{}{"idType": "passport", "idNumber": "P1234567"}
	app.Skills = map[string]interface{}{"skills": []interface{}{"plumbing", "electrical"}}
	app.Availability = map[string]interface{}{"days": []interface{}{"monday", "tuesday"}}
	app.Bank = map[string]interface{}{
		"accountHolder": "Asha Rao",
		"accountNumber": "123456789",
		"bankName":      "State Bank",
	}
	app.Documents = map[string]interface{}{
		FieldPassportPhoto: map[string]interface{}{
			"url":      "http://localhost:8080/uploads/sid-photo.jpg",
			"verified": false,
		},
	}
	app.Agreement = true
	app.StepsCompleted = RequiredSteps()
	return app
}

func expectSubmitTx(env *serviceEnv) {
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO technician_profiles`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()
}

func expectOwnerLookup(env *serviceEnv, ownerID string) {
	env.mock.ExpectQuery(`FROM users WHERE id`).
		WithArgs(ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "role"}).
			AddRow(ownerID, "Asha Rao", "asha@example.com", "9876543210", "customer"))
}

func TestSubmit_Succeeds(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	env.cache.Set(ctx, app)

	expectSubmitTx(env)
	expectOwnerLookup(env, "user-1")

	submitted, err := env.service.Submit(ctx, "app-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.LastSubmittedAt)
	assert.Equal(t, 0, submitted.ResubmittedCount)

	require.Len(t, env.indexer.indexed, 1)
	profile := env.indexer.indexed[0]
	assert.Equal(t, "Asha Rao", profile.FullName)
	assert.Equal(t, "app-1", profile.ApplicationID)
	assert.Equal(t, models.ProfileSubmitted, profile.Status)
	assert.Equal(t, "http://localhost:8080/uploads/sid-photo.jpg", profile.ProfilePictureURL)

	assert.Equal(t, 1, env.notifier.submitted)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestSubmit_IncompleteApplication(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.StepsCompleted = []string{StepPersonal, StepIdentity}
	env.cache.Set(ctx, app)

	_, err := env.service.Submit(ctx, "app-1", "user-1")
	assertErrorCode(t, err, errors.ErrCodeIncompleteApplication)

	stdErr, _ := errors.AsStandardError(err)
	missing, ok := stdErr.Metadata["missingSteps"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{StepSkills, StepAvailability, StepBank, StepDocuments, StepAgreement}, missing)
}

func TestSubmit_AgreementNotAccepted(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Agreement = false
	env.cache.Set(ctx, app)

	_, err := env.service.Submit(ctx, "app-1", "user-1")
	assertErrorCode(t, err, errors.ErrCodePreconditionFailed)
}

func TestSubmit_AlreadySubmitted(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusSubmitted
	env.cache.Set(ctx, app)

	_, err := env.service.Submit(ctx, "app-1", "user-1")
	assertErrorCode(t, err, errors.ErrCodePreconditionFailed)
	assert.Equal(t, 0, env.notifier.submitted)
}

func TestSubmit_RejectedMustBeEditedFirst(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusRejected
	env.cache.Set(ctx, app)

	_, err := env.service.Submit(ctx, "app-1", "user-1")
	assertErrorCode(t, err, errors.ErrCodePreconditionFailed)
}

func TestSubmit_Forbidden(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	env.cache.Set(ctx, app)

	_, err := env.service.Submit(ctx, "app-1", "intruder")
	assertErrorCode(t, err, errors.ErrCodeForbidden)
}

func TestSubmit_IncrementsResubmittedCountAfterRejection(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	// The application was rejected once, edited (which set was_rejected),
	// and is being submitted again.
	app := completeApp("app-1", "user-1")
	app.WasRejected = true
	app.ResubmittedCount = 0
	env.cache.Set(ctx, app)

	expectSubmitTx(env)
	expectOwnerLookup(env, "user-1")

	submitted, err := env.service.Submit(ctx, "app-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, submitted.ResubmittedCount)
	assert.False(t, submitted.WasRejected, "counter must not arm again until the next rejection")
}

func TestSubmit_PreservesFirstSubmittedAt(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	first := app.CreatedAt
	app.SubmittedAt = &first
	app.WasRejected = true
	env.cache.Set(ctx, app)

	expectSubmitTx(env)
	expectOwnerLookup(env, "user-1")

	submitted, err := env.service.Submit(ctx, "app-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, first, *submitted.SubmittedAt, "first submission time is immutable")
	assert.True(t, submitted.LastSubmittedAt.After(first))
}
