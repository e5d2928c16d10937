package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nhle/onebox/internal/ingest"
	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/store"
	"github.com/nhle/onebox/tests/testutil"
)

type fakeClassifier struct {
	calls int
	out   string
	err   error
}

func (f *fakeClassifier) Classify(context.Context, string) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeNotifier struct {
	calls int
	last  model.EmailDocument
	err   error
}

func (f *fakeNotifier) NotifyInterested(_ context.Context, doc model.EmailDocument) error {
	f.calls++
	f.last = doc
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMessage(uid uint32) mailbox.Message {
	return mailbox.Message{
		Account:  "user@example.com",
		Folder:   "INBOX",
		UID:      uid,
		Subject:  "Re: pricing",
		From:     []string{"lead@example.org"},
		To:       []string{"user@example.com"},
		Date:     time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC),
		TextBody: "Sounds great, send over the contract.",
	}
}

func TestProcessStoresClassifiedDocument(t *testing.T) {
	st := testutil.NewTestStore(t)
	classifier := &fakeClassifier{out: "Not Interested"}
	notifier := &fakeNotifier{}
	p := ingest.NewPipeline(st, classifier, notifier, discardLogger())

	if err := p.Process(context.Background(), sampleMessage(1)); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	id := ingest.Fingerprint("user@example.com", "INBOX", 1)
	doc, err := st.GetEmailByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEmailByID: %v", err)
	}
	if doc == nil {
		t.Fatal("document was not persisted")
	}
	if doc.Labels.AI != model.LabelNotInterested {
		t.Errorf("label = %q, want Not Interested", doc.Labels.AI)
	}
	if notifier.calls != 0 {
		t.Errorf("notifier called %d times for a non-interested label", notifier.calls)
	}
}

func TestProcessIsIdempotentPerTriple(t *testing.T) {
	st := testutil.NewTestStore(t)
	classifier := &fakeClassifier{out: "Interested"}
	notifier := &fakeNotifier{}
	p := ingest.NewPipeline(st, classifier, notifier, discardLogger())

	msg := sampleMessage(7)
	for i := 0; i < 2; i++ {
		if err := p.Process(context.Background(), msg); err != nil {
			t.Fatalf("Process pass %d returned error: %v", i+1, err)
		}
	}

	// The second pass must short-circuit at the dedup gate: no second
	// classification, no second notification, still one document.
	if classifier.calls != 1 {
		t.Errorf("classifier called %d times, want 1", classifier.calls)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}

	docs, err := st.SearchEmails(context.Background(), store.EmailFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("persisted documents = %d, want 1", len(docs))
	}
}

func TestProcessLogsDuplicateSkipAtInfo(t *testing.T) {
	st := testutil.NewTestStore(t)
	p := ingest.NewPipeline(st, &fakeClassifier{out: "Spam"}, &fakeNotifier{}, discardLogger())

	msg := sampleMessage(8)
	if err := p.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	// The duplicate pass must surface in the default info-level log stream.
	var buf bytes.Buffer
	logged := ingest.NewPipeline(st, &fakeClassifier{out: "Spam"}, &fakeNotifier{},
		slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := logged.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "skipping duplicate message") {
		t.Errorf("duplicate skip missing from info-level log output: %s", out)
	}
	if !strings.Contains(out, `"level":"INFO"`) {
		t.Errorf("duplicate skip not logged at info: %s", out)
	}
}

func TestProcessGatesNotificationOnInterested(t *testing.T) {
	st := testutil.NewTestStore(t)

	for _, tc := range []struct {
		label     string
		wantCalls int
	}{
		{"Spam", 0},
		{"Out of Office", 0},
		{"Interested", 1},
	} {
		classifier := &fakeClassifier{out: tc.label}
		notifier := &fakeNotifier{}
		p := ingest.NewPipeline(st, classifier, notifier, discardLogger())

		msg := sampleMessage(100)
		msg.Account = "gate-" + tc.label // distinct triple per case
		if err := p.Process(context.Background(), msg); err != nil {
			t.Fatalf("Process(%s) returned error: %v", tc.label, err)
		}

		if notifier.calls != tc.wantCalls {
			t.Errorf("label %s: notifier calls = %d, want %d",
				tc.label, notifier.calls, tc.wantCalls)
		}
	}
}

func TestProcessRecordsNotificationAudit(t *testing.T) {
	st := testutil.NewTestStore(t)
	p := ingest.NewPipeline(st, &fakeClassifier{out: "Interested"}, &fakeNotifier{}, discardLogger())

	if err := p.Process(context.Background(), sampleMessage(3)); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	notifications, err := st.GetNotifications(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifications))
	}
	wantID := ingest.Fingerprint("user@example.com", "INBOX", 3)
	if notifications[0].EmailID != wantID {
		t.Errorf("notification email id = %q, want %q", notifications[0].EmailID, wantID)
	}
}

func TestProcessCoercesClassifierFailures(t *testing.T) {
	st := testutil.NewTestStore(t)

	cases := []struct {
		name       string
		classifier *fakeClassifier
	}{
		{"transport error", &fakeClassifier{err: errors.New("connection refused")}},
		{"malformed output", &fakeClassifier{out: "definitely a hot lead!!"}},
	}

	for i, tc := range cases {
		notifier := &fakeNotifier{}
		p := ingest.NewPipeline(st, tc.classifier, notifier, discardLogger())

		msg := sampleMessage(uint32(200 + i))
		if err := p.Process(context.Background(), msg); err != nil {
			t.Fatalf("%s: Process returned error: %v", tc.name, err)
		}

		id := ingest.Fingerprint(msg.Account, msg.Folder, msg.UID)
		doc, err := st.GetEmailByID(context.Background(), id)
		if err != nil || doc == nil {
			t.Fatalf("%s: document missing after classifier failure: %v", tc.name, err)
		}
		if doc.Labels.AI != model.LabelUnlabelled {
			t.Errorf("%s: label = %q, want Unlabelled", tc.name, doc.Labels.AI)
		}
		if notifier.calls != 0 {
			t.Errorf("%s: notifier called for Unlabelled document", tc.name)
		}
	}
}

func TestProcessNotifierFailureDoesNotRetractDocument(t *testing.T) {
	st := testutil.NewTestStore(t)
	notifier := &fakeNotifier{err: errors.New("slack is down")}
	p := ingest.NewPipeline(st, &fakeClassifier{out: "Interested"}, notifier, discardLogger())

	if err := p.Process(context.Background(), sampleMessage(4)); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	id := ingest.Fingerprint("user@example.com", "INBOX", 4)
	doc, err := st.GetEmailByID(context.Background(), id)
	if err != nil || doc == nil {
		t.Fatalf("document missing after notifier failure: %v", err)
	}
	if doc.Labels.AI != model.LabelInterested {
		t.Errorf("label = %q, want Interested", doc.Labels.AI)
	}
}
