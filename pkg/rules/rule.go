// Package rules evaluates spatial rule definitions against location
// updates. The matcher output order is stable (creation time, then id) so
// downstream event-id derivation stays deterministic across replicas.
package rules

import (
	"context"
	"time"
)

// Rule types.
const (
	TypeGeofenceEnter = "GEOFENCE_ENTER"
	TypeProximity     = "PROXIMITY"
)

// Rule is a stored rule definition. Both rule types are radius-containment
// predicates around a center point; an optional CEL condition gates the
// match on update attributes.
type Rule struct {
	RuleID        string    `json:"rule_id"`
	Name          string    `json:"name"`
	Type          string    `json:"rule_type"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	RadiusM       float64   `json:"radius_m"`
	Condition     string    `json:"condition,omitempty"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	WebhookSecret string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Source lists the active rule definitions in stable order.
type Source interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}
