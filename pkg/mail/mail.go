// Package mail renders and delivers the verification code email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Provider() string
}

var htmlBody = template.Must(template.New("verification.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Hello {{.Name}},</h2>
  <p>Use the code below to sign in to {{.AppName}}. It replaces any code you received before.</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>Your email address is your username. If you did not expect this message you can ignore it.</p>
</body>
</html>`))

var textBody = texttemplate.Must(texttemplate.New("verification.txt").Parse(`Hello {{.Name}},

Use this code to sign in to {{.AppName}}: {{.Code}}

It replaces any code you received before. Your email address is your username.
`))

var namePolicy = bluemonday.StrictPolicy()

// VerificationMessage renders the email carrying a student's verification code.
func VerificationMessage(appName, email, name, code string) (Message, error) {
	cleanName := strings.TrimSpace(namePolicy.Sanitize(name))
	if cleanName == "" {
		cleanName = "student"
	}

	data := struct {
		AppName string
		Name    string
		Code    string
	}{AppName: appName, Name: cleanName, Code: code}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		To:      mail.Address{Name: cleanName, Address: email},
		Subject: "Your verification code",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
