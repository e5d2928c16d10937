package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/onebox/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// EmailExists reports whether a document with the given ID is persisted.
func (s *SQLiteStore) EmailExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM emails WHERE id = ?", id,
	)
	if err != nil {
		return false, fmt.Errorf("checking email %s: %w", id, err)
	}
	return count > 0, nil
}

// UpsertEmail inserts or replaces a document keyed by its ID.
func (s *SQLiteStore) UpsertEmail(ctx context.Context, doc model.EmailDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO emails (
			id, account, folder, subject, from_addr, to_addr,
			date, body, label, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Account, doc.Folder, doc.Subject, doc.From, doc.To,
		doc.Date.UTC(), doc.Text, string(doc.Labels.AI), doc.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting email %s: %w", doc.ID, err)
	}
	return nil
}

// GetEmailByID retrieves a single document by its ID, or nil when absent.
func (s *SQLiteStore) GetEmailByID(
	ctx context.Context,
	id string,
) (*model.EmailDocument, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM emails WHERE id = ?", id)

	doc, err := scanEmailRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting email %s: %w", id, err)
	}

	return &doc, nil
}

// SearchEmails retrieves documents matching the provided filter,
// newest first.
func (s *SQLiteStore) SearchEmails(
	ctx context.Context,
	filter EmailFilter,
) ([]model.EmailDocument, error) {
	var conditions []string
	var args []interface{}

	if filter.Account != nil {
		conditions = append(conditions, "account = ?")
		args = append(args, *filter.Account)
	}
	if filter.Folder != nil {
		conditions = append(conditions, "folder = ?")
		args = append(args, *filter.Folder)
	}
	if filter.Label != nil {
		conditions = append(conditions, "label = ?")
		args = append(args, *filter.Label)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR body LIKE ? OR from_addr LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM emails"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var docs []model.EmailDocument
	for rows.Next() {
		doc, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// CreateNotification inserts a new notification record.
// If the record has no ID, a new UUID is generated.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, email_id, account, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.EmailID, n.Account, n.Message, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetNotifications retrieves recent notification records, newest first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	query := "SELECT * FROM notifications ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// scanEmail scans an email row from a sqlx.Rows result set.
func scanEmail(rows *sqlx.Rows) (model.EmailDocument, error) {
	var (
		doc       model.EmailDocument
		label     string
		date      time.Time
		fetchedAt time.Time
	)

	err := rows.Scan(
		&doc.ID, &doc.Account, &doc.Folder, &doc.Subject,
		&doc.From, &doc.To, &date, &doc.Text, &label, &fetchedAt,
	)
	if err != nil {
		return model.EmailDocument{}, fmt.Errorf("scanning email row: %w", err)
	}

	doc.Date = date
	doc.FetchedAt = fetchedAt
	doc.Labels.AI = model.ParseLabel(label)

	return doc, nil
}

// scanEmailRow scans a single email row from a sqlx.Row.
func scanEmailRow(row *sqlx.Row) (model.EmailDocument, error) {
	var (
		doc       model.EmailDocument
		label     string
		date      time.Time
		fetchedAt time.Time
	)

	err := row.Scan(
		&doc.ID, &doc.Account, &doc.Folder, &doc.Subject,
		&doc.From, &doc.To, &date, &doc.Text, &label, &fetchedAt,
	)
	if err != nil {
		return model.EmailDocument{}, err
	}

	doc.Date = date
	doc.FetchedAt = fetchedAt
	doc.Labels.AI = model.ParseLabel(label)

	return doc, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		createdAt time.Time
	)

	err := rows.Scan(&n.ID, &n.EmailID, &n.Account, &n.Message, &createdAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.CreatedAt = createdAt
	return n, nil
}
