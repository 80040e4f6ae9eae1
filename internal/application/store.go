package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"localpro-backend/internal/common/database"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
)

// appColumns is the shared column list for application scans. Order must
// match scanApplication.
const appColumns = `id, owner_id, contact_info, status, steps_completed,
	personal, identity, skills, availability, bank, documents, agreement,
	submitted_at, last_submitted_at, review_notes, rejection_reason,
	resubmitted_count, was_rejected, version, created_at, updated_at`

// Store persists application documents in Postgres. Sub-documents live in
// JSONB columns; concurrent writers are serialized with an optimistic
// version column.
type Store struct {
	db     *database.PostgresClient
	cache  *Cache
	logger logger.Logger
}

func NewStore(db *database.PostgresClient, cache *Cache, log logger.Logger) *Store {
	return &Store{
		db:     db,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "application-store"}),
	}
}

// Start returns the owner's active application, creating a fresh draft when
// none exists. The bool reports whether a new draft was created. Starting is
// idempotent: a second call returns the same application id.
func (s *Store) Start(ctx context.Context, ownerID, contactInfo string) (*models.Application, bool, error) {
	existing, err := s.findActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	// The contact identity must be unique across other owners' active
	// applications.
	var conflictOwner string
	err = s.db.QueryRow(ctx,
		`SELECT owner_id FROM applications
		 WHERE contact_info = $1 AND owner_id <> $2 AND status <> 'approved' LIMIT 1`,
		contactInfo, ownerID,
	).Scan(&conflictOwner)
	if err == nil {
		return nil, false, errors.NewConflictError(
			fmt.Sprintf("contact %s already has an active application", contactInfo))
	}
	if err != sql.ErrNoRows {
		return nil, false, errors.NewDatabaseQueryFailedError(err)
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		ContactInfo:    contactInfo,
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

	_, err = s.db.Exec(ctx,
		`INSERT INTO applications (id, owner_id, contact_info, status, steps_completed,
			personal, identity, skills, availability, bank, documents, agreement,
			resubmitted_count, was_rejected, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		app.ID, app.OwnerID, app.ContactInfo, app.Status,
		mustJSON(app.StepsCompleted), mustJSON(app.Personal), mustJSON(app.Identity),
		mustJSON(app.Skills), mustJSON(app.Availability), mustJSON(app.Bank),
		mustJSON(app.Documents), app.Agreement, app.ResubmittedCount, app.WasRejected,
		app.Version, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return nil, false, errors.NewDatabaseInsertFailedError(err)
	}

	s.logger.Info("created application draft", map[string]interface{}{
		"applicationId": app.ID,
		"ownerId":       ownerID,
	})
	return app, true, nil
}

func (s *Store) findActiveByOwner(ctx context.Context, ownerID string) (*models.Application, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+appColumns+` FROM applications
		 WHERE owner_id = $1 AND status <> 'approved'
		 ORDER BY created_at DESC LIMIT 1`, ownerID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError(err)
	}
	return app, nil
}

// GetByID loads one application, read-through the cache.
func (s *Store) GetByID(ctx context.Context, applicationID string) (*models.Application, error) {
	if cached := s.cache.Get(ctx, applicationID); cached != nil {
		return cached, nil
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+appColumns+` FROM applications WHERE id = $1`, applicationID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application", applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError(err)
	}

	s.cache.Set(ctx, app)
	return app, nil
}

// ListByOwner returns the owner's applications, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*models.Application, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+appColumns+` FROM applications
		 WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	apps := []*models.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailedError(err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError(err)
	}
	return apps, nil
}

// Update writes the document fields guarded by the optimistic version. On
// success app.Version is bumped and the cache entry dropped; a stale version
// yields ErrCodeVersionConflict so the caller can re-read and retry.
func (s *Store) Update(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(ctx,
		`UPDATE applications SET
			status = $1, steps_completed = $2, personal = $3, identity = $4,
			skills = $5, availability = $6, bank = $7, documents = $8,
			agreement = $9, review_notes = $10, rejection_reason = $11,
			was_rejected = $12, version = version + 1, updated_at = $13
		 WHERE id = $14 AND version = $15`,
		app.Status, mustJSON(app.StepsCompleted), mustJSON(app.Personal),
		mustJSON(app.Identity), mustJSON(app.Skills), mustJSON(app.Availability),
		mustJSON(app.Bank), mustJSON(app.Documents), app.Agreement,
		app.ReviewNotes, app.RejectionReason, app.WasRejected, now,
		app.ID, app.Version,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	if affected == 0 {
		return errors.NewVersionConflictError(app.ID)
	}

	app.Version++
	app.UpdatedAt = now
	s.cache.Invalidate(ctx, app.ID)
	return nil
}

// Submit commits the status flip, the profile upsert, and the audit record
// in a single transaction, guarded by the application version.
func (s *Store) Submit(ctx context.Context, app *models.Application, profile *models.TechnicianProfile) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE applications SET
			status = $1, submitted_at = $2, last_submitted_at = $3,
			resubmitted_count = $4, was_rejected = false, rejection_reason = '',
			version = version + 1, updated_at = $5
		 WHERE id = $6 AND version = $7`,
		app.Status, app.SubmittedAt, app.LastSubmittedAt,
		app.ResubmittedCount, now, app.ID, app.Version,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	if affected == 0 {
		return errors.NewVersionConflictError(app.ID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO technician_profiles (id, owner_id, application_id, full_name,
			email, phone, city, skills, bank, profile_picture_url, status,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (owner_id) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			city = EXCLUDED.city,
			skills = EXCLUDED.skills,
			bank = EXCLUDED.bank,
			profile_picture_url = EXCLUDED.profile_picture_url,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		profile.ID, profile.OwnerID, profile.ApplicationID, profile.FullName,
		profile.Email, profile.Phone, profile.City, mustJSON(profile.Skills),
		mustJSON(profile.Bank), profile.ProfilePictureURL, profile.Status,
		now, now,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	if err := insertAudit(ctx, tx, app.ID, "application_submitted", app.OwnerID, map[string]interface{}{
		"resubmittedCount": app.ResubmittedCount,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	app.Version++
	app.UpdatedAt = now
	app.WasRejected = false
	app.RejectionReason = ""
	s.cache.Invalidate(ctx, app.ID)
	return nil
}

// UpdateReview commits a review decision together with the profile status
// change and the audit record.
func (s *Store) UpdateReview(ctx context.Context, app *models.Application, profileStatus models.ProfileStatus, actorID string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE applications SET
			status = $1, review_notes = $2, rejection_reason = $3,
			version = version + 1, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		app.Status, app.ReviewNotes, app.RejectionReason, now, app.ID, app.Version,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	if affected == 0 {
		return errors.NewVersionConflictError(app.ID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE technician_profiles SET status = $1, updated_at = $2
		 WHERE application_id = $3`,
		profileStatus, now, app.ID,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	if err := insertAudit(ctx, tx, app.ID, "application_"+string(app.Status), actorID, map[string]interface{}{
		"reviewNotes":     app.ReviewNotes,
		"rejectionReason": app.RejectionReason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	app.Version++
	app.UpdatedAt = now
	s.cache.Invalidate(ctx, app.ID)
	return nil
}

// GetOwner loads the contact projection used for notifications.
func (s *Store) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	var owner models.Owner
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, phone, role FROM users WHERE id = $1`, ownerID,
	).Scan(&owner.ID, &owner.Name, &owner.Email, &owner.Phone, &owner.Role)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user", ownerID)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError(err)
	}
	return &owner, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, entityID, action, actorID string, details map[string]interface{}) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (entity_type, entity_id, action, actor_id, details, created_at)
		 VALUES ('application', $1, $2, $3, $4, $5)`,
		entityID, action, actorID, mustJSON(details), time.Now().UTC(),
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app             models.Application
		stepsRaw        []byte
		personalRaw     []byte
		identityRaw     []byte
		skillsRaw       []byte
		availabilityRaw []byte
		bankRaw         []byte
		documentsRaw    []byte
		submittedAt     sql.NullTime
		lastSubmittedAt sql.NullTime
		reviewNotes     sql.NullString
		rejectionReason sql.NullString
	)

	err := row.Scan(
		&app.ID, &app.OwnerID, &app.ContactInfo, &app.Status, &stepsRaw,
		&personalRaw, &identityRaw, &skillsRaw, &availabilityRaw, &bankRaw,
		&documentsRaw, &app.Agreement, &submittedAt, &lastSubmittedAt,
		&reviewNotes, &rejectionReason, &app.ResubmittedCount, &app.WasRejected,
		&app.Version, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(stepsRaw, &app.StepsCompleted); err != nil {
		return nil, err
	}
	sections := []struct {
		raw []byte
		dst *map[string]interface{}
	}{
		{personalRaw, &app.Personal},
		{identityRaw, &app.Identity},
		{skillsRaw, &app.Skills},
		{availabilityRaw, &app.Availability},
		{bankRaw, &app.Bank},
		{documentsRaw, &app.Documents},
	}
	for _, sec := range sections {
		if err := unmarshalJSONB(sec.raw, sec.dst); err != nil {
			return nil, err
		}
		if *sec.dst == nil {
			*sec.dst = map[string]interface{}{}
		}
	}
	if app.StepsCompleted == nil {
		app.StepsCompleted = []string{}
	}

	if submittedAt.Valid {
		t := submittedAt.Time
		app.SubmittedAt = &t
	}
	if lastSubmittedAt.Valid {
		t := lastSubmittedAt.Time
		app.LastSubmittedAt = &t
	}
	app.ReviewNotes = reviewNotes.String
	app.RejectionReason = rejectionReason.String

	return &app, nil
}

func unmarshalJSONB(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode jsonb column: %w", err)
	}
	return nil
}

// mustJSON marshals values built from decoded JSON; these never fail.
func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}
