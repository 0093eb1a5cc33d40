// Package notify holds the channel transports used by the outbox worker.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid sends email through the SendGrid v3 API.
type SendGrid struct {
	client mailClient
	from   *mail.Email
}

func NewSendGrid(apiKey, fromAddr, fromName string) (*SendGrid, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	if fromAddr == "" {
		return nil, fmt.Errorf("from address is empty")
	}
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), from: mail.NewEmail(fromName, fromAddr)}, nil
}

func (s *SendGrid) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("to address is empty")
	}
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)))

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		log.Printf("[sendgrid] error status=%d, body=%s", resp.StatusCode, resp.Body)
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", resp.StatusCode, resp.Body)
	}
	log.Printf("[sendgrid] mail sent: status=%d to=%s subject=%s", resp.StatusCode, to, subject)
	return nil
}
