package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// Placeholders used when a message carries no usable content.
const (
	noContentPlaceholder = "(No content)"
	noSubjectPlaceholder = "(no-subject)"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// BuildDocument converts a fetched message into its canonical document
// shell. The label starts as Unlabelled; classification fills it in later
// during the same processing pass.
func BuildDocument(msg mailbox.Message, now time.Time) model.EmailDocument {
	subject := msg.Subject
	if subject == "" {
		subject = noSubjectPlaceholder
	}

	date := msg.Date
	if date.IsZero() {
		date = now
	}

	return model.EmailDocument{
		ID:        Fingerprint(msg.Account, msg.Folder, msg.UID),
		Account:   msg.Account,
		Folder:    msg.Folder,
		Subject:   subject,
		From:      strings.Join(msg.From, ","),
		To:        strings.Join(msg.To, ","),
		Date:      date,
		Text:      normalizeBody(msg.TextBody, msg.HTMLBody),
		Labels:    model.EmailLabels{AI: model.LabelUnlabelled},
		FetchedAt: now,
	}
}

// normalizeBody prefers the trimmed plain-text part. When that is absent
// it strips markup tags from the HTML part (naive removal, no entity
// decoding); when both parts are absent it yields the fixed placeholder.
func normalizeBody(textBody, htmlBody string) string {
	if text := strings.TrimSpace(textBody); text != "" {
		return text
	}
	if htmlBody != "" {
		return strings.TrimSpace(tagPattern.ReplaceAllString(htmlBody, ""))
	}
	return noContentPlaceholder
}
