// Package models - contact request types.
//
// ContactRequest is the raw JSON body exactly as the browser sends it.
// ContactSubmission is the normalized value produced by the validator; only a
// ContactSubmission ever reaches the abuse, captcha and mail stages.
package models

import "time"

// ContactRequest is the decoded POST body of the contact endpoint.
//
// FormRenderTime is a pointer so an absent timestamp can be told apart from
// zero; it carries milliseconds since the Unix epoch (browser Date.now()).
type ContactRequest struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Message        string   `json:"message"`
	RecaptchaToken string   `json:"recaptchaToken"`
	Website        string   `json:"website,omitempty"`
	FormRenderTime *float64 `json:"formRenderTime,omitempty"`
}

// ContactSubmission is a validated contact form submission. It lives for one
// request and is never persisted.
type ContactSubmission struct {
	Name           string
	Email          string
	Message        string
	RecaptchaToken string
	Website        string
	FormRenderTime *time.Time
}

// HasRenderTime reports whether the client supplied a render timestamp.
func (s *ContactSubmission) HasRenderTime() bool {
	return s.FormRenderTime != nil
}
