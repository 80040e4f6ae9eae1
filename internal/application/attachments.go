package application

import (
	"context"
	"time"

	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/metrics"
	"localpro-backend/internal/models"
)

// attachFiles stores each uploaded file and records its reference under
// documents.<field>. A failed upload is logged and reported per field; it
// never aborts the step save, so the applicant keeps the fields that did
// make it. Files for fields the step does not accept are skipped with an
// error entry.
func (s *Service) attachFiles(ctx context.Context, app *models.Application, step Step, files []UploadedFile) map[string]string {
	if len(files) == 0 {
		return nil
	}

	accepted := make(map[string]bool, len(step.FileFields))
	for _, f := range step.FileFields {
		accepted[f] = true
	}

	uploadErrors := map[string]string{}
	for _, file := range files {
		if !accepted[file.Field] {
			uploadErrors[file.Field] = "unknown document field"
			continue
		}

		obj, err := s.blobs.Put(ctx, file.Filename, file.Content)
		if err != nil {
			metrics.DocumentUploads.WithLabelValues(file.Field, "failure").Inc()
			s.logger.WithError(err).Error("document upload failed", map[string]interface{}{
				"applicationId": app.ID,
				"field":         file.Field,
			})
			uploadErrors[file.Field] = errors.NewUploadFailedError(file.Field, err).Message
			continue
		}

		metrics.DocumentUploads.WithLabelValues(file.Field, "success").Inc()
		if app.Documents == nil {
			app.Documents = map[string]interface{}{}
		}
		app.Documents[file.Field] = documentRef(obj.URL, obj.StorageID, file, obj.Size)
	}

	if len(uploadErrors) == 0 {
		return nil
	}
	return uploadErrors
}

// documentRef builds the stored reference as a plain map so it round-trips
// the JSONB column the same way client-sent sub-documents do.
func documentRef(url, storageID string, file UploadedFile, size int64) map[string]interface{} {
	return map[string]interface{}{
		"url":              url,
		"storageId":        storageID,
		"originalFilename": file.Filename,
		"mimeType":         file.MimeType,
		"size":             size,
		"uploadedAt":       time.Now().UTC().Format(time.RFC3339),
		"verified":         false,
	}
}
