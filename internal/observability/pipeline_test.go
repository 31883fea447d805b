package observability

import (
	"context"
	"errors"
	"testing"

	"contactd/internal/captcha"
	"contactd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type stubVerifier struct {
	verdict *captcha.Verdict
	err     error
}

func (s stubVerifier) Verify(context.Context, string, string) (*captcha.Verdict, error) {
	return s.verdict, s.err
}

type stubNotifier struct{ err error }

func (s stubNotifier) Notify(context.Context, *models.ContactSubmission) error { return s.err }

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInstrumentedVerifier(t *testing.T) {
	tel := setupTestTelemetry(t)

	v, err := NewInstrumentedVerifier(stubVerifier{verdict: &captcha.Verdict{Success: true, Score: 0.9, Action: "contact"}})
	require.NoError(t, err)

	verdict, err := v.Verify(context.Background(), "secret-token", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 0.9, verdict.Score)

	ended := tel.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "captcha.Verify", ended[0].Name())

	score, ok := attrValue(ended[0].Attributes(), "captcha.score")
	require.True(t, ok)
	assert.Equal(t, 0.9, score.AsFloat64())

	for _, kv := range ended[0].Attributes() {
		assert.NotEqual(t, "secret-token", kv.Value.Emit())
		assert.NotEqual(t, "203.0.113.7", kv.Value.Emit())
	}
}

func TestInstrumentedVerifier_Error(t *testing.T) {
	tel := setupTestTelemetry(t)

	v, err := NewInstrumentedVerifier(stubVerifier{err: errors.New("timeout")})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "t", "")
	require.Error(t, err)

	ended := tel.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, int64(1), tel.sumOf(t, "captcha.operation.errors"))
}

func TestInstrumentedNotifier(t *testing.T) {
	tel := setupTestTelemetry(t)

	n, err := NewInstrumentedNotifier(stubNotifier{})
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), &models.ContactSubmission{Message: "hello"}))

	failing, err := NewInstrumentedNotifier(stubNotifier{err: errors.New("535")})
	require.NoError(t, err)
	require.Error(t, failing.Notify(context.Background(), &models.ContactSubmission{Message: "hello"}))

	assert.Equal(t, []string{"mail.Notify", "mail.Notify"}, tel.spanNames())
	assert.Equal(t, int64(1), tel.sumOf(t, "mail.operation.errors"))
}

func TestSubmissionCounter(t *testing.T) {
	tel := setupTestTelemetry(t)

	c, err := NewSubmissionCounter()
	require.NoError(t, err)

	c.RecordSubmission(context.Background(), "sent", "")
	c.RecordSubmission(context.Background(), "CAPTCHA_FAILED", "low_score")
	c.RecordSubmission(context.Background(), "CAPTCHA_FAILED", "low_score")

	assert.Equal(t, int64(3), tel.sumOf(t, "contact.submissions"))
}
