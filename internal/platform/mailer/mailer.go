// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mailer is the outbound email boundary of the Users service.

Implementations:

  - PostmarkSender: transactional delivery through Postmark.
  - LogSender: writes the message to the structured log (development).
  - QueuePublisher: hands the message to RabbitMQ; a [QueueConsumer] delivers it later.

Delivery is always best-effort from the caller's point of view: the [Dispatcher]
logs and swallows failures so a bounced email never fails a sign-up or reset.
*/
package mailer

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrInvalidMessage is returned when a message is missing a recipient, subject or body.
	ErrInvalidMessage = errors.New("mailer: invalid message")

	// ErrSendFailed wraps transport failures.
	ErrSendFailed = errors.New("mailer: send failed")
)

// Message is one transactional email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	// Tag groups messages by template for analytics and metrics.
	Tag string `json:"tag,omitempty"`
}

// Validate checks the fields every transport needs.
func (message Message) Validate() error {
	if _, err := mail.ParseAddress(message.To); err != nil {
		return errors.Join(ErrInvalidMessage, errors.New("recipient is not a valid address"))
	}
	if strings.TrimSpace(message.Subject) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	}
	if strings.TrimSpace(message.HTMLBody) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("body is required"))
	}
	return nil
}

// Sender delivers one message.
type Sender interface {
	Send(context context.Context, message Message) error
}
