// Package mailer delivers contact notifications through an OAuth2
// authenticated SMTP relay (Gmail by default).
//
// Messages are composed with jordan-wright/email: a plain text body and an
// escaped HTML body, Reply-To set to the submitter. Authentication is SASL
// XOAUTH2 with access tokens minted from a long-lived refresh token; password
// authentication is never used.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"contactd/internal/models"

	"github.com/jordan-wright/email"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GmailScope is the OAuth2 scope that allows SMTP access.
const GmailScope = "https://mail.google.com/"

const defaultSendTimeout = 30 * time.Second

// ErrNotConfigured is returned when mail credentials are missing.
var ErrNotConfigured = errors.New("mail relay is not configured")

// Notifier sends exactly one notification per accepted submission.
type Notifier interface {
	Notify(ctx context.Context, sub *models.ContactSubmission) error
}

// SendFunc delivers a composed message to the relay at addr.
type SendFunc func(ctx context.Context, addr string, auth smtp.Auth, e *email.Email) error

// Mailer is the production Notifier.
type Mailer struct {
	cfg    models.MailConfig
	tokens oauth2.TokenSource
	tls    *tls.Config
	send   SendFunc
}

// Option customizes a Mailer.
type Option func(*Mailer)

// WithTokenSource replaces the refresh token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(m *Mailer) { m.tokens = ts }
}

// WithTLSConfig sets the TLS configuration used after STARTTLS. ServerName
// defaults to the relay host.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Mailer) { m.tls = cfg }
}

// WithSendFunc replaces SMTP delivery. Intended for tests.
func WithSendFunc(send SendFunc) Option {
	return func(m *Mailer) { m.send = send }
}

// OAuthConfig returns the OAuth2 client configuration for the mail provider.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{GmailScope},
	}
}

// New creates a Mailer. ctx carries the HTTP client used for token refreshes
// and should live as long as the Mailer.
func New(ctx context.Context, cfg models.MailConfig, opts ...Option) *Mailer {
	m := &Mailer{cfg: cfg}
	if cfg.RefreshToken != "" {
		m.tokens = OAuthConfig(cfg.ClientID, cfg.ClientSecret, "").
			TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.send == nil {
		m.send = startTLSSender(m.tls)
	}
	return m
}

// Configured reports whether every credential is present.
func (m *Mailer) Configured() bool {
	return len(m.cfg.Missing()) == 0 && m.tokens != nil
}

// Notify composes and sends the notification for sub.
func (m *Mailer) Notify(ctx context.Context, sub *models.ContactSubmission) error {
	if missing := m.cfg.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	if m.tokens == nil {
		return fmt.Errorf("%w: no token source", ErrNotConfigured)
	}

	e := Compose(sub, m.cfg)
	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))
	if err := m.send(ctx, addr, XOAuth2(m.cfg.User, m.tokens), e); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// startTLSSender delivers through (*email.Email).SendWithStartTLS. The library
// takes no context, so the caller stops waiting once ctx is done and the
// session finishes or fails on its own.
func startTLSSender(tlsConfig *tls.Config) SendFunc {
	return func(ctx context.Context, addr string, auth smtp.Auth, e *email.Email) error {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("invalid relay address %q: %w", addr, err)
		}
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if tlsConfig != nil {
			cfg = tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultSendTimeout)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() { done <- e.SendWithStartTLS(addr, auth, cfg) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("smtp session to %s did not finish: %w", addr, ctx.Err())
		}
	}
}
