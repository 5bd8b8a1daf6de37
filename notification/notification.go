// Package notification carries marketplace events to the people they concern.
//
// Writers enqueue a Notification into the outbox table, usually inside the
// transaction that produced the event. A Relay later claims pending rows and
// hands them to a Publisher: the user inbox, Kafka, AMQP or the log.
package notification

import (
	"context"
	"time"
)

// Topics emitted by the marketplace.
const (
	TopicOfferCreated         = "offer.created"
	TopicOfferAccepted        = "offer.accepted"
	TopicOfferRejected        = "offer.rejected"
	TopicShipmentCancelled    = "shipment.cancelled"
	TopicVerificationReviewed = "verification.reviewed"
	TopicRatingReceived       = "rating.received"
	TopicAnnouncement         = "announcement"
)

// Notification is one message addressed to one user.
type Notification struct {
	Topic       string         `json:"topic"`
	RecipientID string         `json:"recipientId"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Dispatcher accepts notifications for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, ns ...Notification) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Dispatch(context.Context, ...Notification) error { return nil }

// Message is an outbox row claimed for publishing.
type Message struct {
	ID           string
	Topic        string
	RecipientID  string
	Body         []byte
	Notification Notification
	Attempts     int
	CreatedAt    time.Time
}
