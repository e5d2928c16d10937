package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// Message is one fetched mailbox message: envelope metadata plus the
// extracted body parts. UID is the server-assigned identifier, stable for
// this account and folder until the mailbox is reset.
type Message struct {
	Account string
	Folder  string
	UID     uint32

	Subject string
	From    []string
	To      []string
	Date    time.Time

	TextBody string
	HTMLBody string
}

// messageFromBuffer builds a Message from a fetched buffer, flattening
// envelope addresses to bare address strings and parsing the MIME body
// when a body section was requested.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
	account, folder string,
) Message {
	msg := Message{
		Account: account,
		Folder:  folder,
		UID:     uint32(buf.UID),
	}

	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date
		msg.From = flattenAddresses(buf.Envelope.From)
		msg.To = flattenAddresses(buf.Envelope.To)
	}

	if section != nil {
		if raw := buf.FindBodySection(section); raw != nil {
			msg.TextBody, msg.HTMLBody = parseMIMEBody(raw)
		}
	}

	return msg
}

// flattenAddresses converts envelope addresses to bare address strings,
// dropping display names.
func flattenAddresses(addrs []imap.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Addr())
	}
	return out
}

// parseMIMEBody parses a raw RFC 2822 message using go-message and
// extracts the text/plain and text/html bodies.
func parseMIMEBody(raw []byte) (textBody, htmlBody string) {
	reader := bytes.NewReader(raw)

	mr, err := mail.CreateReader(reader)
	if err != nil {
		// If parsing fails, try treating the whole thing as plain text
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody
}
