// Package validate turns a raw contact request into a normalized
// models.ContactSubmission.
//
// Every violated rule is collected so the server can log the full picture,
// but callers only ever report a single generic failure to the client.
package validate

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"contactd/internal/models"
)

// Field limits for the contact form.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxMessageLength = 2000
)

// Rule identifiers reported in FieldError.Rule.
const (
	RuleRequired   = "required"
	RuleTooLong    = "too_long"
	RuleLineBreak  = "line_break"
	RuleFormat     = "format"
	RuleBlankLines = "too_many_newlines"
	RuleTimestamp  = "timestamp"
)

var (
	// ErrInvalidInput is matched with errors.Is for any validation failure.
	ErrInvalidInput = errors.New("invalid input")

	lineBreak       = regexp.MustCompile(`[\r\n]`)
	excessNewlines  = regexp.MustCompile(`(\r?\n){4,}`)
	emailDomainPart = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// FieldError describes one violated rule. It is meant for server logs only.
type FieldError struct {
	Field string
	Rule  string
}

func (fe FieldError) String() string {
	return fe.Field + ":" + fe.Rule
}

// Error is returned when a request breaks one or more rules.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid input: %s", strings.Join(parts, ", "))
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalidInput
}

// Names returns the violated fields in a form suitable for a log attribute.
func (e *Error) Names() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.String()
	}
	return out
}

// Submission validates req and returns the trimmed submission. Line break and
// blank line rules apply to the raw values, so trimming never hides them. The
// honeypot field is passed through untouched; judging it is the heuristics
// stage's job.
func Submission(req models.ContactRequest) (*models.ContactSubmission, error) {
	var errs []FieldError
	fail := func(field, rule string) {
		errs = append(errs, FieldError{Field: field, Rule: rule})
	}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		fail("name", RuleRequired)
	case utf8.RuneCountInString(name) > MaxNameLength:
		fail("name", RuleTooLong)
	case lineBreak.MatchString(req.Name):
		fail("name", RuleLineBreak)
	}

	email := strings.TrimSpace(req.Email)
	switch {
	case email == "":
		fail("email", RuleRequired)
	case len(email) > MaxEmailLength:
		fail("email", RuleTooLong)
	case lineBreak.MatchString(req.Email):
		fail("email", RuleLineBreak)
	case !isEmail(email):
		fail("email", RuleFormat)
	}

	message := strings.TrimSpace(req.Message)
	switch {
	case message == "":
		fail("message", RuleRequired)
	case utf8.RuneCountInString(message) > MaxMessageLength:
		fail("message", RuleTooLong)
	case excessNewlines.MatchString(req.Message):
		fail("message", RuleBlankLines)
	}

	token := strings.TrimSpace(req.RecaptchaToken)
	if token == "" {
		fail("recaptchaToken", RuleRequired)
	}

	var renderedAt *time.Time
	if req.FormRenderTime != nil {
		ms := *req.FormRenderTime
		if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
			fail("formRenderTime", RuleTimestamp)
		} else {
			t := time.UnixMilli(int64(ms))
			renderedAt = &t
		}
	}

	if len(errs) > 0 {
		return nil, &Error{Fields: errs}
	}

	return &models.ContactSubmission{
		Name:           name,
		Email:          email,
		Message:        message,
		RecaptchaToken: token,
		Website:        req.Website,
		FormRenderTime: renderedAt,
	}, nil
}

// isEmail accepts a bare addr-spec with a dotted domain. Display names and
// angle brackets are rejected because the value ends up in a Reply-To header.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	return emailDomainPart.MatchString(s)
}
