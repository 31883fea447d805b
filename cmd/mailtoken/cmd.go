package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"contactd/internal/mailer"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const defaultRedirectURL = "http://localhost:3000"

type tokenOptions struct {
	clientID     string
	clientSecret string
	redirectURL  string
	code         string
	timeout      time.Duration
	tokenURL     string
}

func envOr(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// newRootCmd builds the mailtoken command
func newRootCmd() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "mailtoken",
		Short: "Obtain a mail relay refresh token",
		Long: `Run the OAuth2 consent flow for the account that sends contact
notifications and print its refresh token.

This command:
1. Prints a consent URL requesting offline access to the mail scope
2. Reads the authorization code from --code or standard input
3. Exchanges it and prints the refresh token to store as CONTACT_MAIL_REFRESH_TOKEN

Client credentials default to CONTACT_MAIL_CLIENT_ID / GMAIL_CLIENT_ID and
CONTACT_MAIL_CLIENT_SECRET / GMAIL_CLIENT_SECRET.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenFlow(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.clientID, "client-id", envOr("CONTACT_MAIL_CLIENT_ID", "GMAIL_CLIENT_ID"), "OAuth2 client ID")
	cmd.PersistentFlags().StringVar(&opts.clientSecret, "client-secret", envOr("CONTACT_MAIL_CLIENT_SECRET", "GMAIL_CLIENT_SECRET"), "OAuth2 client secret")
	cmd.PersistentFlags().StringVar(&opts.redirectURL, "redirect-url", defaultRedirectURL, "Redirect URL registered for the client")
	cmd.Flags().StringVar(&opts.code, "code", "", "Authorization code; read from stdin when empty")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Token exchange timeout")
	cmd.PersistentFlags().StringVar(&opts.tokenURL, "token-url", "", "Override the token endpoint")
	_ = cmd.PersistentFlags().MarkHidden("token-url")

	cmd.AddCommand(newURLCmd(opts))
	return cmd
}

// newURLCmd prints only the consent URL
func newURLCmd(opts *tokenOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.oauthConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), consentURL(cfg))
			return nil
		},
	}
}

func (o *tokenOptions) oauthConfig() (*oauth2.Config, error) {
	var missing []string
	if o.clientID == "" {
		missing = append(missing, "client-id")
	}
	if o.clientSecret == "" {
		missing = append(missing, "client-secret")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	cfg := mailer.OAuthConfig(o.clientID, o.clientSecret, o.redirectURL)
	if o.tokenURL != "" {
		cfg.Endpoint.TokenURL = o.tokenURL
	}
	return cfg, nil
}

// consentURL forces the consent screen so a refresh token is always issued.
func consentURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("contactd", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func runTokenFlow(ctx context.Context, opts *tokenOptions, in io.Reader, out io.Writer) error {
	cfg, err := opts.oauthConfig()
	if err != nil {
		return err
	}

	code := opts.code
	if code == "" {
		fmt.Fprintln(out, "Authorize this app by visiting this URL:")
		fmt.Fprintln(out, consentURL(cfg))
		fmt.Fprint(out, "\nEnter the code from that page here: ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = extractCode(line)
	}
	if code == "" {
		return errors.New("no authorization code provided")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("no refresh token returned; revoke the app's access and try again")
	}

	fmt.Fprintln(out, "\nRefresh token:")
	fmt.Fprintln(out, tok.RefreshToken)
	return nil
}

// extractCode accepts either the bare code or the full redirect URL the
// browser landed on.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		if c := u.Query().Get("code"); c != "" {
			return c
		}
	}
	return input
}
