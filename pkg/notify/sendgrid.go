package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers email reminders through the SendGrid v3 API.
type SendGridSender struct {
	client     mailClient
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGridSender constructs a SendGrid-backed sender.
func NewSendGridSender(apiKey, fromName, fromEmail string) *SendGridSender {
	return newSendGridSender(sendgrid.NewSendClient(apiKey), fromName, fromEmail)
}

func newSendGridSender(client mailClient, fromName, fromEmail string) *SendGridSender {
	return &SendGridSender{
		client:     client,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
	}
}

// Name identifies the sender.
func (s *SendGridSender) Name() string { return "sendgrid" }

// Send posts the reminder as a plain-text email.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelEmail {
		return fmt.Errorf("sendgrid %s: %w", msg.Channel, ErrUnsupportedChannel)
	}
	resp, err := s.client.SendWithContext(ctx, s.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.RecipientName, msg.Recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}
