// Package notify delivers reminder notifications. Every send is
// best-effort: a failure is reported to the caller for logging and never
// retried here.
package notify

import "context"

// Sink is the outbound notification contract consumed by the scheduler.
type Sink interface {
	// SendEmail delivers one message to the given addresses.
	SendEmail(ctx context.Context, recipients []string, subject, body string) error
	// SendMessage delivers a text message to a phone number over the
	// messaging channel.
	SendMessage(ctx context.Context, phoneNumber, text string) error
}
