package notifications

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
	templates "github.com/deepshield/deepshield-api/templates/html"
)

// Sender delivers one message; *sendgrid.Client satisfies it
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// Emailer mails the owner of a record when something they care about changed
type Emailer struct {
	UDB      databases.UserDatabase
	Sender   Sender
	From     string
	FromName string
}

// NewEmailer returns an Emailer backed by SendGrid
func NewEmailer(udb databases.UserDatabase, apiKey, from string) *Emailer {
	return &Emailer{
		UDB:      udb,
		Sender:   sendgrid.NewSendClient(apiKey),
		From:     from,
		FromName: "DeepShield",
	}
}

type message struct {
	subject string
	html    string
	plain   string
}

// compose returns the email for e, or false when the owner is not told
func compose(e models.Event, name string) (message, bool) {
	switch {
	case e.Type == models.EventFlagCreated:
		return message{
			subject: "Your content is under review",
			html:    templates.RenderContentFlaggedEmail(name, e.Reason),
			plain:   "Something you submitted was flagged and is waiting for a moderator. Reason: " + e.Reason,
		}, true
	case e.Type == models.EventFlagStatusChanged && (e.To == string(models.StatusResolved) || e.To == string(models.StatusDismissed)):
		return message{
			subject: "Review complete",
			html:    templates.RenderFlagDecisionEmail(name, e.To),
			plain:   "A moderator finished reviewing your content. Outcome: " + e.To,
		}, true
	case e.Type == models.EventUserVerified:
		return message{
			subject: "You're verified",
			html:    templates.RenderVerifiedEmail(name),
			plain:   "Your identity has been verified.",
		}, true
	case e.Type == models.EventKYCSubmitted:
		plain := "We received your verification request. A reviewer will check your documents and email you with the result."
		return message{
			subject: "Verification request received",
			html:    templates.RenderGenericEmail("Verification request received", plain),
			plain:   plain,
		}, true
	case e.Type == models.EventKYCRejected:
		return message{
			subject: "Verification update",
			html:    templates.RenderKYCRejectedEmail(name, e.Reason),
			plain:   "We could not verify your identity. Reason: " + e.Reason,
		}, true
	}
	return message{}, false
}

// Publish emails the event's owner if the event type calls for it
func (m *Emailer) Publish(ctx context.Context, e models.Event) {
	if e.OwnerID == "" {
		return
	}
	if _, ok := compose(e, ""); !ok {
		return
	}
	owner, err := m.UDB.FindOne(ctx, e.OwnerID)
	if err != nil {
		zap.S().Warnw("failed to load email recipient", "ownerId", e.OwnerID, "event", e.Type, "error", err)
		return
	}
	name := owner.FullName
	if name == "" {
		name = owner.Username
	}
	msg, _ := compose(e, name)
	if err := m.send(owner.Email, name, msg); err != nil {
		zap.S().Errorw("failed to send notification email", "ownerId", e.OwnerID, "event", e.Type, "error", err)
	}
}

func (m *Emailer) send(toEmail, toName string, msg message) error {
	from := mail.NewEmail(m.FromName, m.From)
	to := mail.NewEmail(toName, toEmail)
	email := mail.NewSingleEmail(from, msg.subject, to, msg.plain, msg.html)
	response, err := m.Sender.Send(email)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", toEmail)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent successfully", "to", toEmail, "subject", msg.subject)
	return nil
}
