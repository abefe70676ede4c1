package main

import (
	"bytes"
	"fmt"
	"html/template"

	"go.uber.org/zap"
)

// Email is a rendered outbound message.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers email out of band. Delivery is an external concern;
// the auth core only builds messages and hands them over.
type Mailer interface {
	Send(email Email) error
}

// logMailer is the development mailer: it logs the magic link instead
// of delivering it.
type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) Send(email Email) error {
	m.logger.Info("outbound email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("body", email.TextBody),
	)
	return nil
}

// MagicLinkEmailData holds the fields the magic link templates need.
type MagicLinkEmailData struct {
	SiteName  string
	GroupName string
	MagicLink string
	ExpiresIn string
	Invite    bool
}

// buildMagicLinkEmail renders the sign-in / invite email with both
// text and HTML bodies.
func buildMagicLinkEmail(data MagicLinkEmailData) Email {
	subject := fmt.Sprintf("Sign in to %s", data.SiteName)
	if data.Invite {
		subject = fmt.Sprintf("You're invited to %s on %s", data.GroupName, data.SiteName)
	}
	return Email{
		Subject:  subject,
		TextBody: buildMagicLinkText(data),
		HTMLBody: buildMagicLinkHTML(data),
	}
}

func buildMagicLinkText(data MagicLinkEmailData) string {
	var buf bytes.Buffer
	if data.Invite {
		buf.WriteString(fmt.Sprintf("You've been invited to join %s on %s.\n\n", data.GroupName, data.SiteName))
	} else {
		buf.WriteString(fmt.Sprintf("Click the link below to sign in to %s.\n\n", data.SiteName))
	}
	buf.WriteString(data.MagicLink + "\n\n")
	buf.WriteString(fmt.Sprintf("This link expires in %s and can be used once.\n\n", data.ExpiresIn))
	buf.WriteString("If you did not expect this email, you can safely ignore it.\n")
	return buf.String()
}

func buildMagicLinkHTML(data MagicLinkEmailData) string {
	tmpl := template.Must(template.New("magiclink").Parse(magicLinkHTMLTemplate))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}

const magicLinkHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{if .Invite}}Invitation{{else}}Sign in{{end}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #4f46e5;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              {{if .Invite}}
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">
                You've been invited to join <strong>{{.GroupName}}</strong>.
              </p>
              {{else}}
              <p style="margin: 0 0 24px; font-size: 16px; color: #374151; line-height: 1.5;">
                Click the button below to sign in.
              </p>
              {{end}}
              <div style="text-align: center; margin-bottom: 24px;">
                <a href="{{.MagicLink}}" style="display: inline-block; padding: 12px 32px; background-color: #4f46e5; color: #ffffff; border-radius: 6px; text-decoration: none; font-size: 16px; font-weight: 600;">
                  {{if .Invite}}Accept invitation{{else}}Sign in{{end}}
                </a>
              </div>
              <p style="margin: 0; font-size: 14px; color: #6b7280; text-align: center;">
                This link expires in {{.ExpiresIn}} and can be used once.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
