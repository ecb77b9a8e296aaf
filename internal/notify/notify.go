// Package notify sends transactional e-mails.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// Message is a single e-mail.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGrid delivers mail through the SendGrid v3 API.
type SendGrid struct {
	key  string
	from *sgmail.Email
}

// NewSendGrid creates a SendGrid mailer.
func NewSendGrid(apiKey, fromEmail, fromName string) *SendGrid {
	return &SendGrid{key: apiKey, from: sgmail.NewEmail(fromName, fromEmail)}
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

func (s *SendGrid) Send(_ context.Context, msg Message) error {
	req := sendgrid.GetRequest(s.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// Console prints messages to the log instead of sending them.
type Console struct {
	Log *slog.Logger
}

func (c Console) Send(_ context.Context, msg Message) error {
	c.Log.Info("email", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// Outbox records messages, for tests.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	o.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// InvitationMessage builds the e-mail inviting someone to a group.
func InvitationMessage(to, groupe, inviteur, link string) Message {
	text := fmt.Sprintf("%s vous invite à rejoindre le groupe « %s ».\n\nRépondez à l'invitation : %s\n\nCe lien expire dans 7 jours.",
		inviteur, groupe, link)
	body := fmt.Sprintf(`<p>%s vous invite à rejoindre le groupe <strong>%s</strong>.</p><p><a href="%s">Répondre à l'invitation</a></p><p>Ce lien expire dans 7 jours.</p>`,
		html.EscapeString(inviteur), html.EscapeString(groupe), html.EscapeString(link))
	return Message{
		To:      to,
		Subject: "Invitation au groupe " + groupe,
		Text:    text,
		HTML:    body,
	}
}
