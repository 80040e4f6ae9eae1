// internal/models/profile.go
package models

import "time"

// ProfileStatus mirrors the application status subset a profile can hold.
type ProfileStatus string

const (
	ProfileSubmitted ProfileStatus = "submitted"
	ProfileApproved  ProfileStatus = "approved"
	ProfileRejected  ProfileStatus = "rejected"
	ProfileSuspended ProfileStatus = "suspended"
)

// TechnicianProfile is the platform-facing record for a service provider,
// materialized from the application on submission.
type TechnicianProfile struct {
	ID                string                 `json:"id"`
	OwnerID           string                 `json:"ownerId"`
	ApplicationID     string                 `json:"applicationId"`
	FullName          string                 `json:"fullName"`
	Email             string                 `json:"email,omitempty"`
	Phone             string                 `json:"phone,omitempty"`
	City              string                 `json:"city,omitempty"`
	Skills            map[string]interface{} `json:"skills"`
	Bank              map[string]interface{} `json:"bank,omitempty"`
	ProfilePictureURL string                 `json:"profilePictureUrl,omitempty"`
	Status            ProfileStatus          `json:"status"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}
