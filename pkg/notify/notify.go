// Package notify delivers rendered payment reminders to payers over email or
// a message broker. Rendering and validation happen before a Message reaches
// this package.
package notify

import (
	"context"
	"errors"
)

// Delivery channels a Message can target.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// ErrUnsupportedChannel is returned when a sender cannot reach the requested channel.
var ErrUnsupportedChannel = errors.New("notify: unsupported channel")

// Message is a rendered reminder ready for delivery.
type Message struct {
	ID            string `json:"id"`
	PaymentID     string `json:"payment_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}
