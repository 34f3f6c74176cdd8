// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/idgate/internal/platform/metrics"
)

// defaultSendTimeout bounds one delivery attempt.
const defaultSendTimeout = 10 * time.Second

// Dispatcher sends mail on a best-effort basis: errors are logged, counted and
// swallowed.
type Dispatcher struct {
	sender  Sender
	logger  *slog.Logger
	metrics metrics.Recorder
	outcome string
	timeout time.Duration
}

// NewDispatcher wraps sender. queued selects the outcome label recorded on
// success ("queued" for the broker publisher, "sent" otherwise).
func NewDispatcher(sender Sender, logger *slog.Logger, recorder metrics.Recorder, queued bool) *Dispatcher {
	outcome := metrics.MailSent
	if queued {
		outcome = metrics.MailQueued
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger,
		metrics: recorder,
		outcome: outcome,
		timeout: defaultSendTimeout,
	}
}

// Dispatch attempts delivery and never returns an error.
//
// The attempt is detached from the caller's cancellation so a client
// disconnecting right after sign-up does not abort the email.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, message Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatcher.timeout)
	defer cancel()

	if err := dispatcher.sender.Send(sendCtx, message); err != nil {
		dispatcher.metrics.RecordMail(message.Tag, metrics.MailFailed)
		dispatcher.logger.WarnContext(ctx, "email_send_failed",
			slog.String("tag", message.Tag),
			slog.Any("error", err),
		)
		return
	}

	dispatcher.metrics.RecordMail(message.Tag, dispatcher.outcome)
}
