package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-labs/anchorage/pkg/anchor"
	"github.com/meridian-labs/anchorage/pkg/rules"
	"github.com/meridian-labs/anchorage/pkg/store"
)

// Decider is the anchoring decision core.
type Decider interface {
	Decide(ctx context.Context, u anchor.Update) anchor.Decision
}

// LocationLog persists raw submissions and serves history reads.
type LocationLog interface {
	Append(ctx context.Context, subject anchor.Subject, lat, lon float64, at time.Time) error
	History(ctx context.Context, subject anchor.Subject, limit int) ([]store.LocationRecord, error)
}

// EventLog persists and lists emitted anchor events.
type EventLog interface {
	Insert(ctx context.Context, subject anchor.Subject, ev anchor.Event) error
	ListBySubject(ctx context.Context, subject anchor.Subject, limit int) ([]anchor.Event, error)
}

// RuleRegistry is the rule CRUD surface.
type RuleRegistry interface {
	Create(ctx context.Context, r rules.Rule) error
	ActiveRules(ctx context.Context) ([]rules.Rule, error)
	Get(ctx context.Context, ruleID string) (*rules.Rule, error)
	Delete(ctx context.Context, ruleID string) error
}

// RuleMatcher evaluates active rules against an update.
type RuleMatcher interface {
	MatchedRules(ctx context.Context, subject anchor.Subject, lat, lon float64, at time.Time) ([]anchor.MatchedRule, error)
}

// Notifier fans out rule-trigger notifications.
type Notifier interface {
	Notify(ctx context.Context, rule rules.Rule, subject anchor.Subject, ev anchor.Event)
}

// Service holds the HTTP handler dependencies.
type Service struct {
	engine    Decider
	locations LocationLog
	events    EventLog
	registry  RuleRegistry
	matcher   RuleMatcher
	notifier  Notifier
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService wires the HTTP layer to its collaborators. notifier may be
// nil when webhook fan-out is disabled.
func NewService(engine Decider, locations LocationLog, events EventLog, registry RuleRegistry, matcher RuleMatcher, notifier Notifier) *Service {
	return &Service{
		engine:    engine,
		locations: locations,
		events:    events,
		registry:  registry,
		matcher:   matcher,
		notifier:  notifier,
		logger:    slog.Default().With("component", "api"),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// RegisterRoutes mounts the API on a chi router. Authentication and the
// other outer middlewares are applied by the caller.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.HandleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/locations", s.HandleIngest)
		r.Get("/locations/{chain}/{account}", s.HandleLocationHistory)
		r.Get("/events/{chain}/{account}", s.HandleEvents)
		r.Post("/rules", s.HandleCreateRule)
		r.Get("/rules", s.HandleListRules)
		r.Get("/rules/{ruleID}", s.HandleGetRule)
		r.Delete("/rules/{ruleID}", s.HandleDeleteRule)
	})
}

// ingestRequest is the POST /v1/locations body.
type ingestRequest struct {
	Account   string  `json:"account"`
	Chain     string  `json:"chain"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// authorizeSubject checks that the caller may act for the subject.
// Admins may act for anyone; wallet principals only for themselves.
func authorizeSubject(ctx context.Context, subject anchor.Subject) bool {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return false
	}
	if p.HasRole("admin") {
		return true
	}
	return p.Account == subject.Account && p.Chain == subject.Chain
}

func requireAdmin(ctx context.Context) bool {
	p, ok := GetPrincipal(ctx)
	return ok && p.HasRole("admin")
}

// HandleIngest processes one location update: rule matching, the
// anchoring decision, persistence of the raw submission and the emitted
// events, then webhook fan-out.
func (s *Service) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.Account == "" || req.Chain == "" {
		WriteBadRequest(w, "account and chain are required")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 {
		WriteBadRequest(w, "latitude must be in [-90, 90]")
		return
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		WriteBadRequest(w, "longitude must be in [-180, 180]")
		return
	}
	subject := anchor.Subject{Account: req.Account, Chain: req.Chain}
	if !authorizeSubject(r.Context(), subject) {
		WriteForbidden(w, "token does not cover this subject")
		return
	}

	ctx := r.Context()
	now := s.clock()

	matched, err := s.matcher.MatchedRules(ctx, subject, req.Latitude, req.Longitude, now)
	if err != nil {
		s.logger.WarnContext(ctx, "rule matching unavailable, proceeding without matches",
			"subject", subject.String(), "error", err)
		matched = nil
	}

	decision := s.engine.Decide(ctx, anchor.Update{
		Subject:      subject,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		MatchedRules: matched,
	})

	// The raw submission is appended after the decision so the previous
	// location lookup sees the prior state, not this update.
	if err := s.locations.Append(ctx, subject, req.Latitude, req.Longitude, now); err != nil {
		s.logger.WarnContext(ctx, "location append failed",
			"subject", subject.String(), "error", err)
	}

	for _, ev := range decision.Events {
		if err := s.events.Insert(ctx, subject, ev); err != nil {
			s.logger.WarnContext(ctx, "event persist failed",
				"subject", subject.String(), "event_id", ev.EventID, "error", err)
		}
		if ev.EventType == anchor.EventRuleTriggered {
			s.notifyRule(ctx, subject, ev)
		}
	}

	writeJSON(w, http.StatusOK, decision)
}

// notifyRule delivers the webhook for one RULE_TRIGGERED event in the
// background. Context detaches from the request so in-flight deliveries
// survive the response being written.
func (s *Service) notifyRule(ctx context.Context, subject anchor.Subject, ev anchor.Event) {
	if s.notifier == nil {
		return
	}
	rule, err := s.registry.Get(ctx, ev.RuleID)
	if err != nil || rule == nil {
		s.logger.WarnContext(ctx, "rule lookup for webhook failed",
			"rule_id", ev.RuleID, "error", err)
		return
	}
	if rule.WebhookURL == "" {
		return
	}
	go s.notifier.Notify(context.WithoutCancel(ctx), *rule, subject, ev)
}

// HandleLocationHistory serves a subject's raw submissions, newest first.
func (s *Service) HandleLocationHistory(w http.ResponseWriter, r *http.Request) {
	subject := anchor.Subject{
		Account: chi.URLParam(r, "account"),
		Chain:   chi.URLParam(r, "chain"),
	}
	if !authorizeSubject(r.Context(), subject) {
		WriteForbidden(w, "token does not cover this subject")
		return
	}
	recs, err := s.locations.History(r.Context(), subject, queryLimit(r))
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if recs == nil {
		recs = []store.LocationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":   subject.Account,
		"chain":     subject.Chain,
		"locations": recs,
	})
}

// HandleEvents serves a subject's emitted anchor events, newest first.
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	subject := anchor.Subject{
		Account: chi.URLParam(r, "account"),
		Chain:   chi.URLParam(r, "chain"),
	}
	if !authorizeSubject(r.Context(), subject) {
		WriteForbidden(w, "token does not cover this subject")
		return
	}
	evs, err := s.events.ListBySubject(r.Context(), subject, queryLimit(r))
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if evs == nil {
		evs = []anchor.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":       subject.Account,
		"chain":         subject.Chain,
		"anchor_events": evs,
	})
}

// createRuleRequest is the POST /v1/rules body, schema-validated before
// decoding.
type createRuleRequest struct {
	Name          string  `json:"name"`
	RuleType      string  `json:"rule_type"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	RadiusM       float64 `json:"radius_m"`
	Condition     string  `json:"condition"`
	WebhookURL    string  `json:"webhook_url"`
	WebhookSecret string  `json:"webhook_secret"`
}

// HandleCreateRule creates a rule definition. Admin only.
func (s *Service) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(r.Context()) {
		WriteForbidden(w, "rule management requires the admin role")
		return
	}
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	raw, err := io.ReadAll(body)
	if err != nil {
		WriteBadRequest(w, "unreadable request body")
		return
	}
	if err := rules.ValidateCreatePayload(raw); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	var req createRuleRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	rule := rules.Rule{
		RuleID:        uuid.NewString(),
		Name:          req.Name,
		Type:          req.RuleType,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		RadiusM:       req.RadiusM,
		Condition:     req.Condition,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
		Active:        true,
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.registry.Create(r.Context(), rule); err != nil {
		WriteInternal(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "rule created",
		"rule_id", rule.RuleID, "rule_type", rule.Type)
	writeJSON(w, http.StatusCreated, rule)
}

// HandleListRules lists active rules. Admin only.
func (s *Service) HandleListRules(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(r.Context()) {
		WriteForbidden(w, "rule management requires the admin role")
		return
	}
	all, err := s.registry.ActiveRules(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if all == nil {
		all = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": all})
}

// HandleGetRule serves one rule by id. Admin only.
func (s *Service) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(r.Context()) {
		WriteForbidden(w, "rule management requires the admin role")
		return
	}
	rule, err := s.registry.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if rule == nil {
		WriteNotFound(w, "no such rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// HandleDeleteRule deactivates a rule. Admin only.
func (s *Service) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(r.Context()) {
		WriteForbidden(w, "rule management requires the admin role")
		return
	}
	ruleID := chi.URLParam(r, "ruleID")
	if err := s.registry.Delete(r.Context(), ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, "no such rule")
			return
		}
		WriteInternal(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "rule deactivated", "rule_id", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth is the unauthenticated liveness endpoint.
func (s *Service) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
