package mailer

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"contactd/internal/models"

	"github.com/jordan-wright/email"
	"github.com/microcosm-cc/bluemonday"
)

var (
	headerBreaks = regexp.MustCompile(`[\r\n]+`)
	newlines     = regexp.MustCompile(`\r?\n`)

	// bodyPolicy is the final pass over the rendered HTML body; only the
	// markup the template itself produces survives it.
	bodyPolicy = bluemonday.NewPolicy().AllowElements("p", "b", "br")
)

// SanitizeHeader collapses line breaks to single spaces and trims the result,
// so a value can never start a new header line.
func SanitizeHeader(s string) string {
	return strings.TrimSpace(headerBreaks.ReplaceAllString(s, " "))
}

// RenderText renders the plain text body. Name and email are header
// sanitized; the message keeps its line breaks.
func RenderText(sub *models.ContactSubmission) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nMessage: %s",
		SanitizeHeader(sub.Name),
		SanitizeHeader(sub.Email),
		sub.Message,
	)
}

// RenderHTML renders the HTML body with every field escaped and message line
// breaks turned into <br/>.
func RenderHTML(sub *models.ContactSubmission) string {
	message := newlines.ReplaceAllString(html.EscapeString(sub.Message), "<br/>")
	body := fmt.Sprintf("<p><b>Name:</b> %s</p><p><b>Email:</b> %s</p><p><b>Message:</b><br/>%s</p>",
		html.EscapeString(sub.Name),
		html.EscapeString(sub.Email),
		message,
	)
	return bodyPolicy.Sanitize(body)
}

// Compose builds the notification for sub. Reply-To is the sanitized
// submitter address so the owner can answer directly.
func Compose(sub *models.ContactSubmission, cfg models.MailConfig) *email.Email {
	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", SanitizeHeader(cfg.FromName), cfg.User)
	e.To = []string{cfg.Recipient()}
	e.ReplyTo = []string{SanitizeHeader(sub.Email)}
	e.Subject = SanitizeHeader(cfg.Subject)
	e.Text = []byte(RenderText(sub))
	e.HTML = []byte(RenderHTML(sub))
	return e
}
