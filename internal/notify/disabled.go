package notify

import (
	"context"
	"log"
)

// Disabled stands in for a channel switched off by configuration. It logs
// and reports success, so the outbox marks the entry SENT.
type Disabled struct {
	Channel string
}

func (d Disabled) SendEmail(_ context.Context, to, subject, _ string) error {
	log.Printf("[notify] WARN %s channel disabled, dropping mail to=%s subject=%q", d.Channel, to, subject)
	return nil
}

func (d Disabled) SendSMS(_ context.Context, to, _ string) error {
	log.Printf("[notify] WARN %s channel disabled, dropping sms to=%s", d.Channel, to)
	return nil
}

// Log prints every message; used with the in-memory store for local runs.
type Log struct{}

func (Log) SendEmail(_ context.Context, to, subject, body string) error {
	log.Printf("[notify] mail to=%s subject=%q\n%s", to, subject, body)
	return nil
}

func (Log) SendSMS(_ context.Context, to, body string) error {
	log.Printf("[notify] sms to=%s body=%q", to, body)
	return nil
}
