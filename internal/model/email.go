package model

import "time"

// Label is the closed set of classification outcomes for an email.
type Label string

const (
	LabelInterested    Label = "Interested"
	LabelMeetingBooked Label = "Meeting Booked"
	LabelNotInterested Label = "Not Interested"
	LabelSpam          Label = "Spam"
	LabelOutOfOffice   Label = "Out of Office"
	LabelUnlabelled    Label = "Unlabelled"
)

// Labels returns every member of the label set.
func Labels() []Label {
	return []Label{
		LabelInterested,
		LabelMeetingBooked,
		LabelNotInterested,
		LabelSpam,
		LabelOutOfOffice,
		LabelUnlabelled,
	}
}

// ParseLabel maps an arbitrary classifier output string onto the label set.
// Any value that is not an exact member coerces to LabelUnlabelled, so the
// persisted label is always one of the six members no matter what the
// classifier returned.
func ParseLabel(s string) Label {
	switch Label(s) {
	case LabelInterested, LabelMeetingBooked, LabelNotInterested,
		LabelSpam, LabelOutOfOffice, LabelUnlabelled:
		return Label(s)
	default:
		return LabelUnlabelled
	}
}

// EmailLabels holds the label facets attached to a stored email.
// Only the AI classification facet exists today.
type EmailLabels struct {
	AI Label `json:"ai"`
}

// EmailDocument is the unit of record produced by the ingestion pipeline.
// It is created exactly once per distinct (account, folder, uid) triple and
// never revised afterwards.
type EmailDocument struct {
	// ID is the hex-encoded SHA-256 fingerprint of "account:folder:uid".
	ID string `json:"id"`

	// Account is the mailbox username the message was fetched from.
	Account string `json:"account"`

	// Folder is the mailbox folder the message was fetched from.
	Folder string `json:"folder"`

	// Subject is the envelope subject, or "(no-subject)" when absent.
	Subject string `json:"subject"`

	// From holds the bare sender addresses joined by commas.
	From string `json:"from"`

	// To holds the bare recipient addresses joined by commas.
	To string `json:"to"`

	// Date is the envelope date, falling back to capture time.
	Date time.Time `json:"date"`

	// Text is the normalized plain-text body.
	Text string `json:"text"`

	// Labels holds the classification outcome.
	Labels EmailLabels `json:"labels"`

	// FetchedAt is when the pipeline processed this message.
	FetchedAt time.Time `json:"fetched_at"`
}
