// Package ingest implements the per-message processing pipeline: identity,
// dedup, normalization, classification, persistence, and gated fan-out.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// Classifier is the external classification collaborator. Its output is an
// unconstrained string; the pipeline validates it onto the label set.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Store is the persistence surface the pipeline needs: an advisory
// existence check, an idempotent keyed upsert, and the notification audit
// insert.
type Store interface {
	EmailExists(ctx context.Context, id string) (bool, error)
	UpsertEmail(ctx context.Context, doc model.EmailDocument) error
	CreateNotification(ctx context.Context, n model.Notification) error
}

// Notifier fans out alerts for interested emails. Delivery is best-effort;
// a returned error is only ever logged.
type Notifier interface {
	NotifyInterested(ctx context.Context, doc model.EmailDocument) error
}

// Pipeline processes one message at a time. It is shared by all account
// loops but holds no per-message state, so concurrent calls for different
// accounts are safe.
type Pipeline struct {
	store      Store
	classifier Classifier
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline assembles the per-message pipeline.
func NewPipeline(
	store Store,
	classifier Classifier,
	notifier Notifier,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs the full pipeline for one fetched message: fingerprint,
// dedup gate, normalization, classification, upsert, and gated fan-out.
// Duplicates stop before any parsing or side effect. The write always
// precedes notification.
func (p *Pipeline) Process(ctx context.Context, msg mailbox.Message) error {
	id := Fingerprint(msg.Account, msg.Folder, msg.UID)

	// Advisory check: two concurrent attempts can both pass before either
	// writes. The keyed upsert below keeps that race harmless.
	exists, err := p.store.EmailExists(ctx, id)
	if err != nil {
		return fmt.Errorf("checking existence of %s: %w", id, err)
	}
	if exists {
		p.logger.Info("skipping duplicate message",
			slog.String("account", msg.Account),
			slog.String("id", id),
			slog.Uint64("uid", uint64(msg.UID)))
		return nil
	}

	doc := BuildDocument(msg, p.now())

	raw, err := p.classifier.Classify(ctx, doc.Text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Classifier failures are not propagated; the document is stored
		// as Unlabelled.
		p.logger.Warn("classification failed",
			slog.String("account", msg.Account),
			slog.String("subject", doc.Subject),
			slog.String("error", err.Error()))
		raw = string(model.LabelUnlabelled)
	}
	doc.Labels.AI = model.ParseLabel(raw)

	if err := p.store.UpsertEmail(ctx, doc); err != nil {
		return fmt.Errorf("storing email %s: %w", id, err)
	}

	if doc.Labels.AI == model.LabelInterested {
		p.fanOut(ctx, doc)
	}

	p.logger.Info("stored and tagged",
		slog.String("account", msg.Account),
		slog.String("subject", doc.Subject),
		slog.String("label", string(doc.Labels.AI)))

	return nil
}

// fanOut delivers the interested-email notifications and records the
// audit row. Failures never retract the already-persisted document.
func (p *Pipeline) fanOut(ctx context.Context, doc model.EmailDocument) {
	if err := p.notifier.NotifyInterested(ctx, doc); err != nil {
		p.logger.Warn("notification delivery failed",
			slog.String("id", doc.ID),
			slog.String("error", err.Error()))
	}

	n := model.Notification{
		EmailID:   doc.ID,
		Account:   doc.Account,
		Message:   fmt.Sprintf("Interested: %s", doc.Subject),
		CreatedAt: p.now(),
	}
	if err := p.store.CreateNotification(ctx, n); err != nil {
		p.logger.Warn("recording notification failed",
			slog.String("id", doc.ID),
			slog.String("error", err.Error()))
	}
}
