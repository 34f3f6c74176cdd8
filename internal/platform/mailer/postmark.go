// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkSender delivers mail through the Postmark transactional API.
type PostmarkSender struct {
	client       *postmark.Client
	senderEmail  string
	supportEmail string
}

// NewPostmarkSender creates a Postmark-backed sender. Both tokens and the
// sender address are required.
func NewPostmarkSender(serverToken, accountToken, senderEmail, supportEmail string) (*PostmarkSender, error) {
	if serverToken == "" || accountToken == "" {
		return nil, errors.New("mailer: postmark server and account tokens are required")
	}
	if senderEmail == "" {
		return nil, errors.New("mailer: sender email is required")
	}

	return &PostmarkSender{
		client:       postmark.NewClient(serverToken, accountToken),
		senderEmail:  senderEmail,
		supportEmail: supportEmail,
	}, nil
}

// Send implements [Sender]. Replies go to the support address.
func (sender *PostmarkSender) Send(context context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	response, err := sender.client.SendEmail(context, postmark.Email{
		From:     sender.senderEmail,
		ReplyTo:  sender.supportEmail,
		To:       message.To,
		Subject:  message.Subject,
		Tag:      message.Tag,
		HTMLBody: message.HTMLBody,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if response.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", response.ErrorCode, response.Message))
	}

	return nil
}
