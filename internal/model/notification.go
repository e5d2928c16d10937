package model

import "time"

// Notification is the audit record written when the pipeline fans out an
// alert for a stored email. It exists for the read side only; delivery to
// the external sinks does not depend on it.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// EmailID links this notification to the stored email document.
	EmailID string `json:"email_id"`

	// Account identifies the mailbox the email came from.
	Account string `json:"account"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
