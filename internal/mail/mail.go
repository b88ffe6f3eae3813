// Package mail sends notification messages through the organization mail
// service on behalf of a configured sender account.
package mail

import (
	"context"
	"encoding/base64"
	"net/url"
	"os"
	"path/filepath"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/sirikarn/edoc-pipeline/internal/graph"
)

// Attachment is one file attached to an outgoing message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Message is one outgoing mail.
type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer sends messages as the configured sender.
type Mailer struct {
	api    graph.API
	sender string
	log    gklog.Logger
}

func New(api graph.API, sender string, logger gklog.Logger) *Mailer {
	return &Mailer{api: api, sender: sender, log: gklog.With(logger, "component", "mailer")}
}

// Send posts the message through the sender's mailbox.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	recipients := make([]map[string]any, 0, len(msg.To))
	for _, addr := range msg.To {
		recipients = append(recipients, map[string]any{
			"emailAddress": map[string]string{"address": addr},
		})
	}

	attachments := make([]map[string]any, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, map[string]any{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         att.Name,
			"contentType":  att.ContentType,
			"contentBytes": base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	body := map[string]any{
		"message": map[string]any{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": "HTML",
				"content":     msg.HTMLBody,
			},
			"toRecipients": recipients,
			"attachments":  attachments,
		},
		"saveToSentItems": true,
	}

	path := "/users/" + url.PathEscape(m.sender) + "/sendMail"
	if err := m.api.PostJSON(ctx, path, body, nil); err != nil {
		return errors.Wrapf(err, "send mail %q", msg.Subject)
	}
	level.Info(m.log).Log("msg", "sent mail", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

// FileAttachment reads path into a CSV attachment named after the file.
func FileAttachment(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, errors.Wrap(err, "read attachment")
	}
	return Attachment{
		Name:        filepath.Base(path),
		ContentType: "text/csv",
		Content:     data,
	}, nil
}
