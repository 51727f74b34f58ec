package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/anchorage/pkg/anchor"
	"github.com/meridian-labs/anchorage/pkg/rules"
)

func testEvent() anchor.Event {
	return anchor.Event{
		EventID:    "abc123",
		EventType:  anchor.EventRuleTriggered,
		OccurredAt: time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC),
		CellID:     "34.051000_-118.244000",
		RuleID:     "r1",
		Commitment: anchor.ZeroCommitment,
	}
}

func TestNotifySignsCanonicalPayload(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Anchorage-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rule := rules.Rule{
		RuleID: "r1", Name: "office", Type: rules.TypeGeofenceEnter,
		WebhookURL: srv.URL, WebhookSecret: "s3cret",
	}
	n := NewNotifier(2 * time.Second)
	n.Notify(context.Background(), rule, anchor.Subject{Account: "GA1", Chain: "stellar"}, testEvent())

	require.NotEmpty(t, gotBody)
	require.NotEmpty(t, gotSig)

	// The body must already be in canonical form.
	canonical, err := jcs.Transform(gotBody)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(gotBody))

	assert.True(t, hmac.Equal([]byte(Sign("s3cret", gotBody)), []byte(gotSig)))

	var payload Payload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "GA1", payload.Account)
	assert.Equal(t, "stellar", payload.Chain)
	assert.Equal(t, "r1", payload.RuleID)
	assert.Equal(t, "abc123", payload.EventID)
	assert.Equal(t, "RULE_TRIGGERED", payload.EventType)
}

func TestNotifySkipsWithoutURL(t *testing.T) {
	n := NewNotifier(time.Second)
	// Must not panic or attempt a request.
	n.Notify(context.Background(), rules.Rule{RuleID: "r1"}, anchor.Subject{Account: "GA1"}, testEvent())
}

func TestNotifyOmitsSignatureWithoutSecret(t *testing.T) {
	var gotSig *string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := r.Header.Get("X-Anchorage-Signature")
		gotSig = &s
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(2 * time.Second)
	n.Notify(context.Background(), rules.Rule{RuleID: "r1", WebhookURL: srv.URL},
		anchor.Subject{Account: "GA1", Chain: "stellar"}, testEvent())

	require.NotNil(t, gotSig)
	assert.Empty(t, *gotSig)
}

func TestNotifySwallowsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(2 * time.Second)
	// Failure is logged, not surfaced.
	n.Notify(context.Background(), rules.Rule{RuleID: "r1", WebhookURL: srv.URL},
		anchor.Subject{Account: "GA1", Chain: "stellar"}, testEvent())
}
