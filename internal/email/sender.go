package email

import "context"

// Sender provides a testable abstraction over SES delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a plain-text email to one recipient. From overrides the client's
// default sender when set.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}
