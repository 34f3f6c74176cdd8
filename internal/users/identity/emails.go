// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/taibuivan/idgate/internal/platform/mailer"
)

// Mail tags, also used as the metrics template label.
const (
	TagVerifyEmail     = "verify_email"
	TagResetPassword   = "reset_password"
	TagPasswordChanged = "password_changed"
)

// Notifier delivers mail on a best-effort basis.
type Notifier interface {
	Dispatch(context context.Context, message mailer.Message)
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "verify_email"}}<p>Welcome!</p>
<p>Please confirm your email address by following the link below:</p>
<p><a href="{{.Link}}">Confirm my email</a></p>
<p>The link expires in {{.Validity}}. If you did not sign up, ignore this message.</p>{{end}}
{{define "reset_password"}}<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires in {{.Validity}} and works once. If you did not ask for it, ignore this message.</p>{{end}}
{{define "password_changed"}}<p>Your password was just changed and every session using it was signed out.</p>
<p>If this was not you, reset your password immediately and contact support.</p>{{end}}
`))

type emailData struct {
	Link     string
	Validity string
}

// EmailComposer renders the transactional emails sent by the Users service.
type EmailComposer struct {
	apiURL string
	webURL string
}

// NewEmailComposer builds links against the public API and web URLs.
func NewEmailComposer(publicAPIURL, publicWebURL string) *EmailComposer {
	return &EmailComposer{
		apiURL: strings.TrimRight(publicAPIURL, "/"),
		webURL: strings.TrimRight(publicWebURL, "/"),
	}
}

// Verification renders the confirm-your-email message.
func (composer *EmailComposer) Verification(to, token, validity string) (mailer.Message, error) {
	link := composer.apiURL + "/users/verify-email/" + url.PathEscape(token)
	return composer.render(to, "Confirm your email address", TagVerifyEmail, emailData{Link: link, Validity: validity})
}

// PasswordReset renders the reset-your-password message.
func (composer *EmailComposer) PasswordReset(to, token, validity string) (mailer.Message, error) {
	link := composer.webURL + "/reset-password?token=" + url.QueryEscape(token)
	return composer.render(to, "Reset your password", TagResetPassword, emailData{Link: link, Validity: validity})
}

// PasswordChanged renders the post-reset notification.
func (composer *EmailComposer) PasswordChanged(to string) (mailer.Message, error) {
	return composer.render(to, "Your password was changed", TagPasswordChanged, emailData{})
}

func (composer *EmailComposer) render(to, subject, tag string, data emailData) (mailer.Message, error) {
	var body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&body, tag, data); err != nil {
		return mailer.Message{}, fmt.Errorf("identity_email_render_failed: %w", err)
	}

	return mailer.Message{
		To:       to,
		Subject:  subject,
		HTMLBody: body.String(),
		Tag:      tag,
	}, nil
}
