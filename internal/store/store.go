package store

import (
	"context"

	"github.com/nhle/onebox/internal/model"
)

// EmailFilter controls filtering and pagination for email queries.
type EmailFilter struct {
	Query   *string // search subject + body + from
	Account *string
	Folder  *string
	Label   *string
	Limit   int
	Offset  int
}

// Store defines the persistence interface for email documents and
// notification audit records.
type Store interface {
	// EmailExists reports whether a document with the given ID has been
	// persisted. The check is advisory; UpsertEmail stays idempotent
	// regardless of its answer.
	EmailExists(ctx context.Context, id string) (bool, error)

	// UpsertEmail writes a document keyed by its ID. Writing the same ID
	// twice is a no-op observable-state-wise when content matches, and
	// the latest write wins when it does not.
	UpsertEmail(ctx context.Context, doc model.EmailDocument) error

	// GetEmailByID retrieves a single document, or nil when absent.
	GetEmailByID(ctx context.Context, id string) (*model.EmailDocument, error)

	// SearchEmails retrieves documents matching the filter, newest first.
	SearchEmails(ctx context.Context, filter EmailFilter) ([]model.EmailDocument, error)

	// CreateNotification inserts a notification audit record.
	CreateNotification(ctx context.Context, n model.Notification) error

	// GetNotifications retrieves recent notification records, newest first.
	GetNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}
