// Package mailbox wraps one persistent IMAP connection per account,
// offering the backfill and watch primitives the sync driver runs on.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/onebox/internal/model"
)

// idleTimeout bounds a single IDLE wait. RFC 2177 asks clients to re-issue
// IDLE at least every 29 minutes; expiry counts as a successful wait.
const idleTimeout = 24 * time.Minute

// Session is a live, authenticated connection to one account's mailbox
// with a folder selected. It is owned by a single sync loop and is not
// safe for concurrent use.
type Session struct {
	account model.Account
	folder  string
	client  *imapclient.Client
	updates chan struct{}
	logger  *slog.Logger
}

// Dial connects to the account's IMAP server, authenticates, and selects
// the target folder for read/write access. Network and auth failures are
// returned as *ConnectionError.
func Dial(account model.Account, folder string, logger *slog.Logger) (*Session, error) {
	s := &Session{
		account: account,
		folder:  folder,
		updates: make(chan struct{}, 1),
		logger:  logger,
	}

	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(_ *imapclient.UnilateralDataMailbox) {
				s.signal()
			},
			Expunge: func(_ uint32) {
				s.signal()
			},
		},
	}

	var client *imapclient.Client
	var err error
	if account.TLS {
		client, err = imapclient.DialTLS(account.Addr(), opts)
	} else {
		client, err = imapclient.DialStartTLS(account.Addr(), opts)
	}
	if err != nil {
		return nil, &ConnectionError{Account: account.User, Op: "dial", Err: err}
	}

	if err := client.Login(account.User, account.Secret).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{Account: account.User, Op: "login", Err: err}
	}

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{
			Account: account.User,
			Op:      "select",
			Err:     fmt.Errorf("selecting %s: %w", folder, err),
		}
	}

	s.client = client
	return s, nil
}

// signal records mailbox activity without blocking the reader goroutine.
func (s *Session) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// FetchSince streams every message dated at or after since, in
// server-provided order, invoking fn for each. Fetch order is not
// guaranteed chronological. A non-nil error from fn stops the stream.
func (s *Session) FetchSince(
	ctx context.Context,
	since time.Time,
	fn func(Message) error,
) error {
	criteria := &imap.SearchCriteria{Since: since}
	return s.fetchMatching(ctx, criteria, fn)
}

// FetchUnseen streams every message currently marked unseen, invoking fn
// for each.
func (s *Session) FetchUnseen(
	ctx context.Context,
	fn func(Message) error,
) error {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	return s.fetchMatching(ctx, criteria, fn)
}

// fetchMatching runs a UID search and streams the matching messages with
// envelope and body sections through fn while the fetch is open.
func (s *Session) fetchMatching(
	ctx context.Context,
	criteria *imap.SearchCriteria,
	fn func(Message) error,
) error {
	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return &ConnectionError{Account: s.account.User, Op: "search", Err: err}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	uidSet := imap.UIDSetNum(uids...)

	// Peek keeps the server from setting \Seen as a fetch side effect.
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOpts)

	for {
		if err := ctx.Err(); err != nil {
			fetchCmd.Close()
			return err
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			s.logger.Warn("collecting message data",
				slog.String("account", s.account.User),
				slog.String("error", err.Error()))
			continue
		}

		msg := messageFromBuffer(buf, bodySection, s.account.User, s.folder)
		if err := fn(msg); err != nil {
			fetchCmd.Close()
			return err
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return &ConnectionError{Account: s.account.User, Op: "fetch", Err: err}
	}

	return nil
}

// Watch blocks until the server signals mailbox activity, the IDLE
// timeout elapses, or ctx is done. It reports whether the wait succeeded;
// protocol errors surface as *ConnectionError.
func (s *Session) Watch(ctx context.Context) (bool, error) {
	idleCmd, err := s.client.Idle()
	if err != nil {
		return false, &ConnectionError{Account: s.account.User, Op: "idle", Err: err}
	}

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	ok := false
	select {
	case <-ctx.Done():
	case <-s.updates:
		ok = true
	case <-timer.C:
		ok = true
	}

	if err := idleCmd.Close(); err != nil {
		return false, &ConnectionError{Account: s.account.User, Op: "idle", Err: err}
	}
	if err := idleCmd.Wait(); err != nil {
		return false, &ConnectionError{Account: s.account.User, Op: "idle", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	return ok, nil
}

// UnseenCount returns how many messages in the folder are marked unseen.
func (s *Session) UnseenCount(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	status, err := s.client.Status(s.folder, &imap.StatusOptions{
		NumUnseen: true,
	}).Wait()
	if err != nil {
		return 0, &ConnectionError{Account: s.account.User, Op: "status", Err: err}
	}

	if status.NumUnseen == nil {
		return 0, nil
	}
	return *status.NumUnseen, nil
}

// Close logs out and releases the connection.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		return s.client.Close()
	}
	return nil
}
