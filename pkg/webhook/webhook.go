// Package webhook delivers rule-trigger notifications to rule-configured
// endpoints. Delivery is best effort: a slow or failing endpoint never
// blocks or fails the location update that triggered it.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/meridian-labs/anchorage/pkg/anchor"
	"github.com/meridian-labs/anchorage/pkg/rules"
)

// Payload is the notification body. It is JCS-canonicalized before
// signing so receivers can verify the signature over the exact bytes.
type Payload struct {
	Account    string    `json:"account"`
	Chain      string    `json:"chain"`
	RuleID     string    `json:"rule_id"`
	RuleName   string    `json:"rule_name"`
	RuleType   string    `json:"rule_type"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	CellID     string    `json:"cell_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier fans out rule-trigger events over HTTP.
type Notifier struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewNotifier creates a notifier with a per-delivery timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "webhook"),
		timeout: timeout,
	}
}

// Sign computes the hex HMAC-SHA256 of the canonical payload bytes.
func Sign(secret string, canonical []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify delivers one rule-trigger notification. Errors are logged, never
// returned to the caller's request path.
func (n *Notifier) Notify(ctx context.Context, rule rules.Rule, subject anchor.Subject, ev anchor.Event) {
	if rule.WebhookURL == "" {
		return
	}
	body, err := n.canonicalBody(subject, rule, ev)
	if err != nil {
		n.logger.WarnContext(ctx, "webhook payload build failed",
			"rule_id", rule.RuleID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rule.WebhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.WarnContext(ctx, "webhook request build failed",
			"rule_id", rule.RuleID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if rule.WebhookSecret != "" {
		req.Header.Set("X-Anchorage-Signature", Sign(rule.WebhookSecret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.WarnContext(ctx, "webhook delivery failed",
			"rule_id", rule.RuleID, "url", rule.WebhookURL, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		n.logger.WarnContext(ctx, "webhook endpoint rejected delivery",
			"rule_id", rule.RuleID, "url", rule.WebhookURL, "status", resp.StatusCode)
		return
	}
	n.logger.DebugContext(ctx, "webhook delivered",
		"rule_id", rule.RuleID, "event_id", ev.EventID)
}

func (n *Notifier) canonicalBody(subject anchor.Subject, rule rules.Rule, ev anchor.Event) ([]byte, error) {
	raw, err := json.Marshal(Payload{
		Account:    subject.Account,
		Chain:      subject.Chain,
		RuleID:     rule.RuleID,
		RuleName:   rule.Name,
		RuleType:   rule.Type,
		EventID:    ev.EventID,
		EventType:  string(ev.EventType),
		CellID:     ev.CellID,
		OccurredAt: ev.OccurredAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, nil
}
