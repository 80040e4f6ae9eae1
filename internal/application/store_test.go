package application

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpro-backend/internal/common/database"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
)

type testEnv struct {
	mock  sqlmock.Sqlmock
	store *Store
	cache *Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := NewCache(&database.RedisClient{Client: rdb}, time.Minute, logger.NewTestLogger(t))
	store := NewStore(&database.PostgresClient{DB: db}, cache, logger.NewTestLogger(t))
	return &testEnv{mock: mock, store: store, cache: cache}
}

var appColumnNames = []string{
	"id", "owner_id", "contact_info", "status", "steps_completed",
	"personal", "identity", "skills", "availability", "bank", "documents",
	"agreement", "submitted_at", "last_submitted_at", "review_notes",
	"rejection_reason", "resubmitted_count", "was_rejected", "version",
	"created_at", "updated_at",
}

func appRows(apps ...*models.Application) *sqlmock.Rows {
	rows := sqlmock.NewRows(appColumnNames)
	for _, a := range apps {
		var submittedAt, lastSubmittedAt interface{}
		if a.SubmittedAt != nil {
			submittedAt = *a.SubmittedAt
		}
		if a.LastSubmittedAt != nil {
			lastSubmittedAt = *a.LastSubmittedAt
		}
		rows.AddRow(
			a.ID, a.OwnerID, a.ContactInfo, string(a.Status),
			mustJSON(a.StepsCompleted), mustJSON(a.Personal), mustJSON(a.Identity),
			mustJSON(a.Skills), mustJSON(a.Availability), mustJSON(a.Bank),
			mustJSON(a.Documents), a.Agreement, submittedAt, lastSubmittedAt,
			a.ReviewNotes, a.RejectionReason, a.ResubmittedCount, a.WasRejected,
			a.Version, a.CreatedAt, a.UpdatedAt,
		)
	}
	return rows
}

func draftApp(id, ownerID string) *models.Application {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Application{
		ID:             id,
		OwnerID:        ownerID,
		ContactInfo:    ownerID + "@example.com",
		Status:         models.StatusDraft,
		StepsCompleted: []string{},
		Personal:       map[string]interface{}{},
		Identity:       map[string]interface{}{},
		Skills:         map[string]interface{}{},
		Availability:   map[string]interface{}{},
		Bank:           map[string]interface{}{},
		Documents:      map[string]interface{}{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func assertErrorCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %T: %v", err, err)
	assert.Equal(t, code, stdErr.Code)
}

func TestStore_Start_CreatesDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mock.ExpectQuery(`FROM applications\s+WHERE owner_id`).
		WithArgs("user-1").
		WillReturnRows(appRows())
	env.mock.ExpectQuery(`SELECT owner_id FROM applications\s+WHERE contact_info`).
		WithArgs("user-1@example.com", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}))
	env.mock.ExpectExec(`INSERT INTO applications`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	app, created, err := env.store.Start(ctx, "user-1", "user-1@example.com")
	require.NoError(t, err)

	assert.True(t, created)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.Equal(t, 1, app.Version)
	assert.Empty(t, app.StepsCompleted)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStore_Start_ReturnsExistingDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing := draftApp("app-1", "user-1")
	env.mock.ExpectQuery(`FROM applications\s+WHERE owner_id`).
		WithArgs("user-1").
		WillReturnRows(appRows(existing))

	app, created, err := env.store.Start(ctx, "user-1", "user-1@example.com")
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, "app-1", app.ID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStore_Start_ContactConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mock.ExpectQuery(`FROM applications\s+WHERE owner_id`).
		WithArgs("user-2").
		WillReturnRows(appRows())
	env.mock.ExpectQuery(`SELECT owner_id FROM applications\s+WHERE contact_info`).
		WithArgs("taken@example.com", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("user-1"))

	_, _, err := env.store.Start(ctx, "user-2", "taken@example.com")
	assertErrorCode(t, err, errors.ErrCodeConflict)
}

func TestStore_GetByID_ReadsThroughCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stored := draftApp("app-1", "user-1")
	stored.Personal = map[string]interface{}{"firstName": "Asha"}
	env.mock.ExpectQuery(`FROM applications WHERE id`).
		WithArgs("app-1").
		WillReturnRows(appRows(stored))

	first, err := env.store.GetByID(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", first.Personal["firstName"])

	// Second read must come from the cache; no further query is expected.
	second, err := env.store.GetByID(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestStore_GetByID_NotFound(t *testing.T) {
	env := newTestEnv(t)

	env.mock.ExpectQuery(`FROM applications WHERE id`).
		WithArgs("missing").
		WillReturnRows(appRows())

	_, err := env.store.GetByID(context.Background(), "missing")
	assertErrorCode(t, err, errors.ErrCodeNotFound)
}

func TestStore_ListByOwner(t *testing.T) {
	env := newTestEnv(t)

	first := draftApp("app-1", "user-1")
	second := draftApp("app-2", "user-1")
	env.mock.ExpectQuery(`FROM applications\s+WHERE owner_id .+ ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(appRows(second, first))

	apps, err := env.store.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app-2", apps[0].ID)
}

func TestStore_Update_VersionConflict(t *testing.T) {
	env := newTestEnv(t)

	app := draftApp("app-1", "user-1")
	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := env.store.Update(context.Background(), app)
	assertErrorCode(t, err, errors.ErrCodeVersionConflict)
	assert.Equal(t, 1, app.Version, "version must not advance on conflict")
}

func TestStore_Update_BumpsVersionAndInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app := draftApp("app-1", "user-1")
	env.cache.Set(ctx, app)

	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, env.store.Update(ctx, app))
	assert.Equal(t, 2, app.Version)
	assert.Nil(t, env.cache.Get(ctx, "app-1"), "cache entry must be dropped after a write")
}
