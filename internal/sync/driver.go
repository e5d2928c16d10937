// Package sync orchestrates one independent mailbox synchronization loop
// per configured account: a historical backfill followed by an indefinite
// watch/fetch steady state.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// Session is the per-account mailbox connection the driver runs on.
// *mailbox.Session satisfies it; tests substitute fakes.
type Session interface {
	FetchSince(ctx context.Context, since time.Time, fn func(mailbox.Message) error) error
	FetchUnseen(ctx context.Context, fn func(mailbox.Message) error) error
	Watch(ctx context.Context) (bool, error)
	UnseenCount(ctx context.Context) (uint32, error)
	Close() error
}

// SessionFactory acquires a connected session for one account with the
// target folder selected.
type SessionFactory func(account model.Account, folder string) (Session, error)

// Processor runs the full per-message pipeline. Messages from one account
// are processed strictly sequentially.
type Processor interface {
	Process(ctx context.Context, msg mailbox.Message) error
}

// Driver runs the synchronization loops. Each account's loop owns its
// session privately; no state is shared across accounts, so one account's
// failure never affects another's.
type Driver struct {
	accounts []model.Account
	folder   string
	backfill time.Duration
	dial     SessionFactory
	pipeline Processor
	logger   *slog.Logger
}

// NewDriver creates a Driver for the given validated accounts.
func NewDriver(
	accounts []model.Account,
	cfg model.SyncConfig,
	dial SessionFactory,
	pipeline Processor,
	logger *slog.Logger,
) *Driver {
	backfillDays := cfg.BackfillDays
	if backfillDays <= 0 {
		backfillDays = 30
	}
	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	return &Driver{
		accounts: accounts,
		folder:   folder,
		backfill: time.Duration(backfillDays) * 24 * time.Hour,
		dial:     dial,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run starts one loop per account and blocks until every loop has ended.
// Loops end when their connection fails or when ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	var wg gosync.WaitGroup
	for _, acc := range d.accounts {
		wg.Add(1)
		go func(acc model.Account) {
			defer wg.Done()
			d.runAccount(ctx, acc)
		}(acc)
	}
	wg.Wait()
}

// runAccount drives one account: connect, backfill, then the indefinite
// watch/fetch steady state. A connection-level error terminates only this
// loop; per-message errors are logged and skipped.
func (d *Driver) runAccount(ctx context.Context, acc model.Account) {
	logger := d.logger.With(slog.String("account", acc.User))

	sess, err := d.dial(acc, d.folder)
	if err != nil {
		logger.Error("mailbox connection failed", slog.String("error", err.Error()))
		return
	}
	defer sess.Close()
	logger.Info("mailbox connected", slog.String("folder", d.folder))

	cutoff := time.Now().Add(-d.backfill)
	if err := sess.FetchSince(ctx, cutoff, d.handler(ctx, logger)); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("backfill terminated", slog.String("error", err.Error()))
		return
	}
	logger.Info("backfill complete")

	for {
		if ctx.Err() != nil {
			return
		}

		ok, err := sess.Watch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if mailbox.IsConnectionError(err) {
				logger.Error("watch failed, ending account loop",
					slog.String("error", err.Error()))
				return
			}
			logger.Warn("watch failed", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}

		unseen, err := sess.UnseenCount(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if mailbox.IsConnectionError(err) {
				logger.Error("unseen count failed, ending account loop",
					slog.String("error", err.Error()))
				return
			}
			logger.Warn("unseen count failed", slog.String("error", err.Error()))
			continue
		}
		if unseen == 0 {
			continue
		}

		if err := sess.FetchUnseen(ctx, d.handler(ctx, logger)); err != nil {
			if ctx.Err() != nil {
				return
			}
			if mailbox.IsConnectionError(err) {
				logger.Error("unseen fetch failed, ending account loop",
					slog.String("error", err.Error()))
				return
			}
			logger.Warn("unseen fetch failed", slog.String("error", err.Error()))
		}
	}
}

// handler adapts the pipeline for stream iteration: a failure processing
// one message is logged and does not abort the remaining messages in the
// batch. Only context cancellation stops the stream.
func (d *Driver) handler(ctx context.Context, logger *slog.Logger) func(mailbox.Message) error {
	return func(msg mailbox.Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.pipeline.Process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Warn("processing message failed",
				slog.Uint64("uid", uint64(msg.UID)),
				slog.String("error", err.Error()))
		}
		return nil
	}
}
