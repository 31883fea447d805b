package mailer

import (
	"errors"
	"fmt"
	"net/smtp"

	"golang.org/x/oauth2"
)

// xoauth2Auth implements smtp.Auth for the SASL XOAUTH2 mechanism. A fresh
// access token is taken from the token source on every authentication; the
// source caches and refreshes it.
type xoauth2Auth struct {
	user   string
	tokens oauth2.TokenSource
}

// XOAuth2 returns an smtp.Auth that authenticates user with access tokens from tokens.
func XOAuth2(user string, tokens oauth2.TokenSource) smtp.Auth {
	return &xoauth2Auth{user: user, tokens: tokens}
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("refusing XOAUTH2 over an unencrypted connection")
	}
	tok, err := a.tokens.Token()
	if err != nil {
		return "", nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	return "XOAUTH2", xoauth2Payload(a.user, tok.AccessToken), nil
}

// Next answers the server's error challenge with an empty response so the
// server can finish with its final status code.
func (a *xoauth2Auth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return []byte{}, nil
	}
	return nil, nil
}

func xoauth2Payload(user, accessToken string) []byte {
	return []byte("user=" + user + "\x01auth=Bearer " + accessToken + "\x01\x01")
}
