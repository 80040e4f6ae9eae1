package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpro-backend/internal/application"
	"localpro-backend/internal/common/auth"
	"localpro-backend/internal/common/config"
	"localpro-backend/internal/common/database"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
	"localpro-backend/internal/search"
	"localpro-backend/internal/storage"
)

const testSecret = "test-secret"

type esTransport struct {
	body string
}

func (t *esTransport) RoundTrip(_ *http.Request) (*http.Response, error) {
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(t.body)),
	}, nil
}

type apiEnv struct {
	mock   sqlmock.Sqlmock
	cache  *application.Cache
	router *chi.Mux
	es     *esTransport
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	log := logger.NewTestLogger(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cache := application.NewCache(&database.RedisClient{Client: rdb}, time.Minute, log)
	store := application.NewStore(&database.PostgresClient{DB: db}, cache, log)

	blobs, err := storage.NewLocalDiskStore(config.StorageConfig{
		UploadsDir:    t.TempDir(),
		PublicBaseURL: "http://localhost:8080/uploads/",
	}, log)
	require.NoError(t, err)

	svc := application.NewService(store, blobs, nil, nil, log)

	transport := &esTransport{body: `{"hits":{"hits":[]}}`}
	es, err := database.NewElasticsearchWithTransport(transport)
	require.NoError(t, err)
	indexer := search.NewIndexer(es, "technician_profiles", log)

	errs := errors.NewHTTPHandler(log)
	mw := NewMiddleware(auth.NewVerifier(config.AuthConfig{JWTSecret: testSecret}), errs, nil)
	handler := NewHandler(svc, indexer, errs, 10<<20, log)

	router := NewRouter(RouterDeps{Handler: handler, Middleware: mw})
	return &apiEnv{mock: mock, cache: cache, router: router, es: transport}
}

func bearerToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func seedDraft(t *testing.T, env *apiEnv, id, ownerID string) *models.Application {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	app := &models.Application{
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
	env.cache.Set(context.Background(), app)
	return app
}

func doRequest(env *apiEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/applications", nil)
	rec := doRequest(env, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec)["code"])
}

func TestStartApplication_CreatesDraft(t *testing.T) {
	env := newAPIEnv(t)

	appColumns := []string{
		"id", "owner_id", "contact_info", "status", "steps_completed",
		"personal", "identity", "skills", "availability", "bank", "documents",
		"agreement", "submitted_at", "last_submitted_at", "review_notes",
		"rejection_reason", "resubmitted_count", "was_rejected", "version",
		"created_at", "updated_at",
	}
	env.mock.ExpectQuery(`FROM applications\s+WHERE owner_id`).
		WillReturnRows(sqlmock.NewRows(appColumns))
	env.mock.ExpectQuery(`WHERE contact_info`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}))
	env.mock.ExpectExec(`INSERT INTO applications`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"contactInfo": "asha@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/start", body)
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(env, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Application  models.Application `json:"application"`
		MissingSteps []string           `json:"missingSteps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Application.ID)
	assert.Equal(t, models.StatusDraft, resp.Application.Status)
	assert.Len(t, resp.MissingSteps, 7)
}

func TestStartApplication_RequiresContactInfo(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/start",
		strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))

	rec := doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec)["code"])
}

func TestSaveStep_MultipartWithDocument(t *testing.T) {
	env := newAPIEnv(t)
	seedDraft(t, env, "app-1", "user-1")

	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("applicationId", "app-1"))
	require.NoError(t, form.WriteField("step", "Documents"))
	part, err := form.CreateFormFile("passportPhoto", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/save-step", &buf)
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))
	req.Header.Set("Content-Type", form.FormDataContentType())

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Application      models.Application               `json:"application"`
		DocumentStatuses map[string]models.DocumentStatus `json:"documentStatuses"`
		UploadErrors     map[string]string                `json:"uploadErrors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.UploadErrors)
	assert.Contains(t, resp.Application.StepsCompleted, "Documents")
	assert.True(t, resp.DocumentStatuses["passportPhoto"].Submitted)
	assert.False(t, resp.DocumentStatuses["passportPhoto"].Verified)
}

func TestSaveStep_JSONBody(t *testing.T) {
	env := newAPIEnv(t)
	seedDraft(t, env, "app-1", "user-1")

	env.mock.ExpectExec(`UPDATE applications SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{
		"applicationId": "app-1",
		"step": "Personal Details",
		"payload": {
			"firstName": "Asha", "lastName": "Rao",
			"email": "asha@example.com", "phone": "9876543210"
		}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/save-step", body)
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmit_IncompleteApplication(t *testing.T) {
	env := newAPIEnv(t)
	seedDraft(t, env, "app-1", "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/submit",
		strings.NewReader(`{"applicationId": "app-1"}`))
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))

	rec := doRequest(env, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeError(t, rec)
	assert.Equal(t, "INCOMPLETE_APPLICATION", errBody["code"])
	missing, ok := errBody["missingSteps"].([]interface{})
	require.True(t, ok)
	assert.Len(t, missing, 7)
}

func TestGetApplication_OwnershipEnforced(t *testing.T) {
	env := newAPIEnv(t)
	seedDraft(t, env, "app-1", "user-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/technician-application/app-1", nil)
	req.Header.Set("Authorization", bearerToken(t, "intruder", auth.RoleTechnician))
	rec := doRequest(env, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/technician-application/app-1", nil)
	req.Header.Set("Authorization", bearerToken(t, "admin-1", auth.RoleAdmin))
	rec = doRequest(env, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReview_RequiresAdminRole(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/technician-application/review",
		strings.NewReader(`{"applicationId": "app-1", "status": "approved"}`))
	req.Header.Set("Authorization", bearerToken(t, "user-1", auth.RoleTechnician))

	rec := doRequest(env, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec)["code"])
}

func TestSearchTechnicians_Public(t *testing.T) {
	env := newAPIEnv(t)
	env.es.body = `{"hits":{"hits":[
		{"_source":{"ownerId":"user-1","fullName":"Asha Rao","city":"Pune",
			"skills":{"skills":["plumbing"]}}}
	]}}`

	req := httptest.NewRequest(http.MethodGet, "/api/v1/technicians/search?skill=plumbing", nil)
	rec := doRequest(env, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Technicians []search.Result `json:"technicians"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Technicians, 1)
	assert.Equal(t, "Asha Rao", resp.Technicians[0].FullName)
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)

	rec := doRequest(env, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
