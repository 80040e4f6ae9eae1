package models

// Owner is the account that created and controls an application. Account
// management lives in the accounts service; this is the contact projection
// used for notifications.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}
