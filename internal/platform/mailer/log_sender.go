// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them. Links in the
// body stay readable, which is what local development needs.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a development sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements [Sender].
func (sender *LogSender) Send(context context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	sender.logger.InfoContext(context, "email_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("tag", message.Tag),
		slog.String("body", message.HTMLBody),
	)
	return nil
}
