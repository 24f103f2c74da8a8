package outbound

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

// Event type constants.
const (
	EventTypeSubmissionEncoded EventType = "submission_encoded"
)

// Event is the interface that all event types implement.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// GetDigest returns the submission digest the event refers to.
	GetDigest() string
}

// SubmissionEncodedEvent is published once a submission has been stored and archived.
type SubmissionEncodedEvent struct {
	// Digest is the hex keccak256 digest of the canonical submission.
	Digest string `json:"digest"`

	// Assets are the listed asset addresses in canonical order.
	Assets []string `json:"assets"`

	// ArtifactKey is where the canonical bytes were archived, if anywhere.
	ArtifactKey string `json:"artifactKey,omitempty"`

	// Warnings is the number of warnings reported for the submission.
	Warnings int `json:"warnings"`

	// EncodedAt is when the submission was stored.
	EncodedAt time.Time `json:"encodedAt"`
}

func (e SubmissionEncodedEvent) EventType() EventType { return EventTypeSubmissionEncoded }
func (e SubmissionEncodedEvent) GetDigest() string    { return e.Digest }

// EventSink defines the interface for publishing submission events.
type EventSink interface {
	// Publish publishes an event.
	Publish(ctx context.Context, event Event) error

	// Close closes the sink and releases any resources.
	Close() error
}
