// internal/models/application.go
package models

import "time"

// ApplicationStatus enumerates the technician application lifecycle.
type ApplicationStatus string

const (
	StatusDraft       ApplicationStatus = "draft"
	StatusSubmitted   ApplicationStatus = "submitted"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
)

// IsTerminal reports whether the status ends the active application cycle.
// Rejected applications can be reopened by editing, so only approved is
// terminal for the idempotent-start check together with rejected.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Application is one technician application document, one per applicant.
// Sub-documents are open key-value maps merged per step save.
type Application struct {
	ID             string                 `json:"id"`
	OwnerID        string                 `json:"ownerId,omitempty"`
	ContactInfo    string                 `json:"contactInfo"`
	Status         ApplicationStatus      `json:"status"`
	StepsCompleted []string               `json:"stepsCompleted"`
	Personal       map[string]interface{} `json:"personal"`
	Identity       map[string]interface{} `json:"identity"`
	Skills         map[string]interface{} `json:"skills"`
	Availability   map[string]interface{} `json:"availability"`
	Bank           map[string]interface{} `json:"bank"`
	Documents      map[string]interface{} `json:"documents"`
	Agreement      bool                   `json:"agreement"`

	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	LastSubmittedAt  *time.Time `json:"lastSubmittedAt,omitempty"`
	ReviewNotes      string     `json:"reviewNotes,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
	ResubmittedCount int        `json:"resubmittedCount"`
	WasRejected      bool       `json:"wasRejected,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasCompletedStep reports whether the named step is already marked complete.
func (a *Application) HasCompletedStep(step string) bool {
	for _, s := range a.StepsCompleted {
		if s == step {
			return true
		}
	}
	return false
}

// DocumentReference records one uploaded artifact under documents.<field>.
type DocumentReference struct {
	URL              string    `json:"url"`
	StorageID        string    `json:"storageId"`
	OriginalFilename string    `json:"originalFilename"`
	MimeType         string    `json:"mimeType"`
	Size             int64     `json:"size"`
	UploadedAt       time.Time `json:"uploadedAt"`
	Verified         bool      `json:"verified"`
}

// DocumentStatus is the computed per-document state returned by the detail endpoint.
type DocumentStatus struct {
	Submitted bool `json:"submitted"`
	Verified  bool `json:"verified"`
}
