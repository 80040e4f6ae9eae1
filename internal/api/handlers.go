package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"localpro-backend/internal/application"
	"localpro-backend/internal/common/auth"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
	"localpro-backend/internal/search"
)

// Handler implements the workflow endpoints on top of the application
// service and the search index.
type Handler struct {
	service       *application.Service
	search        *search.Indexer
	errs          *errors.HTTPHandler
	maxUploadSize int64
	logger        logger.Logger
}

func NewHandler(service *application.Service, searchIndexer *search.Indexer, errs *errors.HTTPHandler, maxUploadSize int64, log logger.Logger) *Handler {
	return &Handler{
		service:       service,
		search:        searchIndexer,
		errs:          errs,
		maxUploadSize: maxUploadSize,
		logger:        log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// applicationView is the detail shape returned to clients.
type applicationView struct {
	Application      *models.Application              `json:"application"`
	DocumentStatuses map[string]models.DocumentStatus `json:"documentStatuses"`
	MissingSteps     []string                         `json:"missingSteps"`
}

func (h *Handler) view(app *models.Application) applicationView {
	return applicationView{
		Application:      app,
		DocumentStatuses: h.service.DocumentStatuses(app),
		MissingSteps:     application.MissingSteps(app),
	}
}

// StartApplication opens or resumes the caller's draft.
func (h *Handler) StartApplication(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var body struct {
		ContactInfo string `json:"contactInfo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		h.errs.WriteError(w, r, errors.NewValidationFailedError("invalid JSON body", nil))
		return
	}
	contactInfo := strings.TrimSpace(body.ContactInfo)
	if contactInfo == "" {
		h.errs.WriteError(w, r, errors.NewValidationFailedError("contactInfo is required", []errors.FieldError{
			{Field: "contactInfo", Message: "required"},
		}))
		return
	}

	app, created, err := h.service.Start(r.Context(), claims.OwnerID(), contactInfo)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.view(app))
}

// SaveStep accepts multipart form posts (step data plus document files) and
// plain JSON posts.
func (h *Handler) SaveStep(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	input, cleanup, err := h.parseSaveStepRequest(r)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	defer cleanup()
	input.OwnerID = claims.OwnerID()

	result, err := h.service.SaveStep(r.Context(), *input)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		applicationView
		UploadErrors map[string]string `json:"uploadErrors,omitempty"`
	}{
		applicationView: h.view(result.Application),
		UploadErrors:    result.UploadErrors,
	})
}

func (h *Handler) parseSaveStepRequest(r *http.Request) (*application.SaveStepInput, func(), error) {
	noop := func() {}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var body struct {
			ApplicationID string                 `json:"applicationId"`
			Step          string                 `json:"step"`
			Payload       map[string]interface{} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, noop, errors.NewValidationFailedError("invalid JSON body", nil)
		}
		if body.ApplicationID == "" || body.Step == "" {
			return nil, noop, errors.NewValidationFailedError("applicationId and step are required", nil)
		}
		return &application.SaveStepInput{
			ApplicationID: body.ApplicationID,
			Step:          body.Step,
			Payload:       body.Payload,
		}, noop, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, noop, errors.NewValidationFailedError("invalid multipart form: "+err.Error(), nil)
	}

	input := &application.SaveStepInput{
		ApplicationID: r.FormValue("applicationId"),
		Step:          r.FormValue("step"),
	}
	if input.ApplicationID == "" || input.Step == "" {
		return nil, noop, errors.NewValidationFailedError("applicationId and step are required", nil)
	}

	if payloadRaw := r.FormValue("payload"); payloadRaw != "" {
		if err := json.Unmarshal([]byte(payloadRaw), &input.Payload); err != nil {
			return nil, noop, errors.NewValidationFailedError("payload must be a JSON object", nil)
		}
	}

	var opened []multipart.File
	if r.MultipartForm != nil {
		for field, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			header := headers[0]
			file, err := header.Open()
			if err != nil {
				return nil, noop, errors.NewUploadFailedError(field, err)
			}
			opened = append(opened, file)
			input.Files = append(input.Files, application.UploadedFile{
				Field:    field,
				Filename: header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Content:  file,
			})
		}
	}

	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}
	return input, cleanup, nil
}

// GetApplication returns the detail view. Admins can read any application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	applicationID := chi.URLParam(r, "applicationID")

	app, err := h.service.Get(r.Context(), applicationID, claims.OwnerID(), claims.Role == auth.RoleAdmin)
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(app))
}

// SubmitApplication runs the submission gate.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var body struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApplicationID == "" {
		h.errs.WriteError(w, r, errors.NewValidationFailedError("applicationId is required", nil))
		return
	}

	app, err := h.service.Submit(r.Context(), body.ApplicationID, claims.OwnerID())
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(app))
}

// ReviewApplication applies an admin decision.
func (h *Handler) ReviewApplication(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var body struct {
		ApplicationID   string `json:"applicationId"`
		Status          string `json:"status"`
		Notes           string `json:"notes"`
		RejectionReason string `json:"rejectionReason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApplicationID == "" {
		h.errs.WriteError(w, r, errors.NewValidationFailedError("applicationId is required", nil))
		return
	}

	app, err := h.service.Review(r.Context(), application.ReviewInput{
		ApplicationID:   body.ApplicationID,
		ReviewerID:      claims.OwnerID(),
		NewStatus:       models.ApplicationStatus(body.Status),
		Notes:           body.Notes,
		RejectionReason: body.RejectionReason,
	})
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(app))
}

// VerifyDocument marks one uploaded document as verified.
func (h *Handler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	applicationID := chi.URLParam(r, "applicationID")
	field := chi.URLParam(r, "field")

	app, err := h.service.VerifyDocument(r.Context(), applicationID, field, claims.OwnerID())
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(app))
}

// ListMyApplications returns the caller's applications, newest first.
func (h *Handler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	apps, err := h.service.ListByOwner(r.Context(), claims.OwnerID())
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

// SearchTechnicians serves the customer-facing approved-technician search.
func (h *Handler) SearchTechnicians(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.search.SearchTechnicians(r.Context(), search.Query{
		Skill: r.URL.Query().Get("skill"),
		City:  r.URL.Query().Get("city"),
		Size:  size,
	})
	if err != nil {
		h.errs.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"technicians": results})
}
