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

func expectReviewTx(env *serviceEnv) {
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE technician_profiles SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()
}

func TestReview_SubmittedToApproved(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusSubmitted
	env.cache.Set(ctx, app)

	expectReviewTx(env)
	expectOwnerLookup(env, "user-1")

	reviewed, err := env.service.Review(ctx, ReviewInput{
		ApplicationID: "app-1",
		ReviewerID:    "admin-1",
		NewStatus:     models.StatusApproved,
		Notes:         "all documents check out",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, reviewed.Status)
	assert.Equal(t, "all documents check out", reviewed.ReviewNotes)
	assert.Empty(t, reviewed.RejectionReason)

	require.Len(t, env.indexer.indexed, 1)
	assert.Equal(t, models.ProfileApproved, env.indexer.indexed[0].Status)
	assert.Equal(t, 1, env.notifier.approved)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestReview_SubmittedToUnderReview(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusSubmitted
	env.cache.Set(ctx, app)

	expectReviewTx(env)

	reviewed, err := env.service.Review(ctx, ReviewInput{
		ApplicationID: "app-1",
		ReviewerID:    "admin-1",
		NewStatus:     models.StatusUnderReview,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusUnderReview, reviewed.Status)
	assert.Empty(t, env.indexer.indexed)
	assert.Equal(t, 0, env.notifier.approved)
}

func TestReview_Rejection(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusUnderReview
	env.cache.Set(ctx, app)

	expectReviewTx(env)
	expectOwnerLookup(env, "user-1")

	reviewed, err := env.service.Review(ctx, ReviewInput{
		ApplicationID:   "app-1",
		ReviewerID:      "admin-1",
		NewStatus:       models.StatusRejected,
		RejectionReason: "id photo unreadable",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, reviewed.Status)
	assert.Equal(t, "id photo unreadable", reviewed.RejectionReason)
	assert.Equal(t, 1, env.notifier.rejected)
}

func TestReview_RejectionRequiresReason(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.Review(context.Background(), ReviewInput{
		ApplicationID: "app-1",
		ReviewerID:    "admin-1",
		NewStatus:     models.StatusRejected,
	})
	assertErrorCode(t, err, errors.ErrCodeValidationFailed)
}

func TestReview_InvalidTransitionFromDraft(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	env.cache.Set(ctx, app)

	_, err := env.service.Review(ctx, ReviewInput{
		ApplicationID: "app-1",
		ReviewerID:    "admin-1",
		NewStatus:     models.StatusApproved,
	})
	assertErrorCode(t, err, errors.ErrCodeInvalidTransition)
}

func TestReview_InvalidTargetStatus(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.Review(context.Background(), ReviewInput{
		ApplicationID: "app-1",
		ReviewerID:    "admin-1",
		NewStatus:     models.StatusDraft,
	})
	assertErrorCode(t, err, errors.ErrCodeValidationFailed)
}

func TestVerifyDocument(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	app.Status = models.StatusSubmitted
	env.cache.Set(ctx, app)

	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := env.service.VerifyDocument(ctx, "app-1", FieldPassportPhoto, "admin-1")
	require.NoError(t, err)

	ref, ok := updated.Documents[FieldPassportPhoto].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, ref["verified"])
}

func TestVerifyDocument_NotUploaded(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	app := completeApp("app-1", "user-1")
	env.cache.Set(ctx, app)

	_, err := env.service.VerifyDocument(ctx, "app-1", FieldCertificate, "admin-1")
	assertErrorCode(t, err, errors.ErrCodeNotFound)
}

func TestVerifyDocument_UnknownField(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.VerifyDocument(context.Background(), "app-1", "selfie", "admin-1")
	assertErrorCode(t, err, errors.ErrCodeValidationFailed)
}
