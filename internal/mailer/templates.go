package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

type OTPData struct {
	Company         string
	Code            string
	ExpiryMinutes   int
	WebsiteURL      string
	VerificationURL string
}

type TranscriptLine struct {
	Speaker string
	Time    time.Time
	Content string
}

type TranscriptData struct {
	Company        string
	ConversationID string
	UserEmail      string
	Topic          string
	StartedAt      time.Time
	EndedAt        time.Time
	Duration       time.Duration
	EndReason      string
	StorageKey     string
	Lines          []TranscriptLine
}

var (
	otpHTML = htmltemplate.Must(htmltemplate.New("otp_html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Email Verification - {{.Company}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #667eea; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0;">{{.Company}}</h1>
    <p style="color: #f0f0f0; margin: 10px 0 0 0;">Total Solutions Provider</p>
  </div>
  <div style="background: #ffffff; padding: 40px; border-radius: 0 0 10px 10px;">
    <h2 style="margin-top: 0;">Email Verification Code</h2>
    <p>Thank you for your interest in {{.Company}}. Please use the following code to verify your email address:</p>
    <div style="text-align: center; margin: 30px 0;">
      <span style="font-size: 36px; font-weight: bold; letter-spacing: 8px; font-family: 'Courier New', monospace; color: #667eea;">{{.Code}}</span>
    </div>
    {{if .VerificationURL}}<p>You can also continue here: <a href="{{.VerificationURL}}">{{.VerificationURL}}</a></p>{{end}}
    <p><strong>Important:</strong> This code expires in {{.ExpiryMinutes}} minutes.</p>
    <p><strong>Security note:</strong> Never share this code with anyone. {{.Company}} will never ask for it by phone or any other means.</p>
    <p>If you did not request this verification, please ignore this email.</p>
    <hr style="border: none; height: 1px; background: #eee; margin: 30px 0;">
    <p style="text-align: center; font-size: 12px; color: #999;">{{.Company}} &middot; <a href="{{.WebsiteURL}}">{{.WebsiteURL}}</a><br>This is an automated message. Please do not reply.</p>
  </div>
</body>
</html>`))

	otpText = texttemplate.Must(texttemplate.New("otp_text").Parse(`Hello,

Thank you for your interest in {{.Company}}!

Verification Code: {{.Code}}
{{if .VerificationURL}}
Continue here: {{.VerificationURL}}
{{end}}
This code expires in {{.ExpiryMinutes}} minutes.

If you did not request this verification, please ignore this email.
Never share this code with anyone.

{{.Company}} Team
{{.WebsiteURL}}
---
This is an automated message. Please do not reply to this email.
`))

	transcriptHTML = htmltemplate.Must(htmltemplate.New("transcript_html").Funcs(htmltemplate.FuncMap{
		"clock": func(t time.Time) string { return t.UTC().Format("15:04:05") },
		"stamp": func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
	}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Chat transcript {{.ConversationID}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 700px; margin: 0 auto; padding: 20px;">
  <h2>{{.Company}} chat transcript</h2>
  <table style="border-collapse: collapse; margin-bottom: 20px;">
    <tr><td><strong>Conversation</strong></td><td>{{.ConversationID}}</td></tr>
    <tr><td><strong>User</strong></td><td>{{.UserEmail}}</td></tr>
    <tr><td><strong>Topic</strong></td><td>{{.Topic}}</td></tr>
    <tr><td><strong>Started</strong></td><td>{{stamp .StartedAt}}</td></tr>
    <tr><td><strong>Ended</strong></td><td>{{stamp .EndedAt}}</td></tr>
    <tr><td><strong>Duration</strong></td><td>{{.Duration}}</td></tr>
    <tr><td><strong>End reason</strong></td><td>{{.EndReason}}</td></tr>
    {{if .StorageKey}}<tr><td><strong>Stored at</strong></td><td>{{.StorageKey}}</td></tr>{{end}}
  </table>
  {{range .Lines}}
  <div style="margin-bottom: 12px;">
    <div style="font-size: 12px; color: #666;">{{.Speaker}} &middot; {{clock .Time}}</div>
    <div style="white-space: pre-wrap;">{{.Content}}</div>
  </div>
  {{end}}
</body>
</html>`))

	transcriptText = texttemplate.Must(texttemplate.New("transcript_text").Funcs(texttemplate.FuncMap{
		"clock": func(t time.Time) string { return t.UTC().Format("15:04:05") },
		"stamp": func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
	}).Parse(`{{.Company}} chat transcript

Conversation: {{.ConversationID}}
User:         {{.UserEmail}}
Topic:        {{.Topic}}
Started:      {{stamp .StartedAt}}
Ended:        {{stamp .EndedAt}}
Duration:     {{.Duration}}
End reason:   {{.EndReason}}
{{if .StorageKey}}Stored at:    {{.StorageKey}}
{{end}}
{{range .Lines}}[{{clock .Time}}] {{.Speaker}}: {{.Content}}
{{end}}`))
)

// OTPEmail renders the verification code message.
func OTPEmail(to string, data OTPData) (Email, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := otpHTML.Execute(&htmlBuf, data); err != nil {
		return Email{}, fmt.Errorf("render otp html: %w", err)
	}
	if err := otpText.Execute(&textBuf, data); err != nil {
		return Email{}, fmt.Errorf("render otp text: %w", err)
	}
	return Email{
		To:      []string{to},
		Subject: data.Company + " - Email Verification Code",
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}

// TranscriptEmail renders the internal notification for a finished conversation.
func TranscriptEmail(to string, data TranscriptData) (Email, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := transcriptHTML.Execute(&htmlBuf, data); err != nil {
		return Email{}, fmt.Errorf("render transcript html: %w", err)
	}
	if err := transcriptText.Execute(&textBuf, data); err != nil {
		return Email{}, fmt.Errorf("render transcript text: %w", err)
	}
	subject := fmt.Sprintf("%s chat transcript: %s", data.Company, data.UserEmail)
	if data.UserEmail == "" {
		subject = fmt.Sprintf("%s chat transcript: %s", data.Company, data.ConversationID)
	}
	return Email{
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}
