package rules

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

const earthRadiusM = 6371000.0

// haversineM returns the great-circle distance between two coordinates in
// meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// Matcher evaluates active rules against an update. Compiled CEL programs
// are cached per rule id + expression.
type Matcher struct {
	source Source
	env    *cel.Env
	logger *slog.Logger

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewMatcher builds a matcher. The CEL environment exposes the update
// attributes account, chain, latitude, longitude and hour_utc.
func NewMatcher(source Source) (*Matcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.StringType),
		cel.Variable("chain", cel.StringType),
		cel.Variable("latitude", cel.DoubleType),
		cel.Variable("longitude", cel.DoubleType),
		cel.Variable("hour_utc", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return &Matcher{
		source:   source,
		env:      env,
		logger:   slog.Default().With("component", "rules"),
		programs: make(map[string]cel.Program),
	}, nil
}

// MatchedRules returns the rules containing (lat, lon), ordered by
// creation time then rule id. A rule whose CEL condition fails to compile
// or evaluate is skipped, not fatal.
func (m *Matcher) MatchedRules(ctx context.Context, subject anchor.Subject, lat, lon float64, at time.Time) ([]anchor.MatchedRule, error) {
	all, err := m.source.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	var matched []anchor.MatchedRule
	for _, r := range all {
		if haversineM(lat, lon, r.Latitude, r.Longitude) > r.RadiusM {
			continue
		}
		if r.Condition != "" {
			ok, err := m.evalCondition(ctx, r, subject, lat, lon, at)
			if err != nil {
				m.logger.WarnContext(ctx, "rule condition failed, skipping rule",
					"rule_id", r.RuleID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, anchor.MatchedRule{
			RuleID:   r.RuleID,
			RuleName: r.Name,
			RuleType: r.Type,
		})
	}
	return matched, nil
}

func (m *Matcher) evalCondition(_ context.Context, r Rule, subject anchor.Subject, lat, lon float64, at time.Time) (bool, error) {
	prg, err := m.program(r)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"account":   subject.Account,
		"chain":     subject.Chain,
		"latitude":  lat,
		"longitude": lon,
		"hour_utc":  int64(at.UTC().Hour()),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition is not boolean: %v", out.Value())
	}
	return b, nil
}

func (m *Matcher) program(r Rule) (cel.Program, error) {
	key := r.RuleID + "\x00" + r.Condition
	m.mu.Lock()
	defer m.mu.Unlock()
	if prg, ok := m.programs[key]; ok {
		return prg, nil
	}
	ast, iss := m.env.Compile(r.Condition)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile: %w", iss.Err())
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	m.programs[key] = prg
	return prg, nil
}
