package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

type staticSource struct {
	rules []Rule
	err   error
}

func (s *staticSource) ActiveRules(_ context.Context) ([]Rule, error) {
	return s.rules, s.err
}

var matchSubject = anchor.Subject{Account: "GA1", Chain: "stellar"}

func newTestMatcher(t *testing.T, src Source) *Matcher {
	t.Helper()
	m, err := NewMatcher(src)
	require.NoError(t, err)
	return m
}

func TestHaversine(t *testing.T) {
	// LA city hall to Union Station, roughly 650m.
	d := haversineM(34.0537, -118.2428, 34.0562, -118.2365)
	assert.InDelta(t, 640, d, 100)

	assert.Equal(t, 0.0, haversineM(34.05, -118.24, 34.05, -118.24))
}

func TestMatcherRadiusContainment(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{RuleID: "near", Name: "hq", Type: TypeGeofenceEnter, Latitude: 34.0512, Longitude: -118.2437, RadiusM: 500},
		{RuleID: "far", Name: "port", Type: TypeProximity, Latitude: 33.73, Longitude: -118.26, RadiusM: 500},
	}}
	m := newTestMatcher(t, src)

	got, err := m.MatchedRules(context.Background(), matchSubject, 34.0515, -118.2440, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].RuleID)
	assert.Equal(t, "hq", got[0].RuleName)
	assert.Equal(t, TypeGeofenceEnter, got[0].RuleType)
}

func TestMatcherKeepsSourceOrder(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{RuleID: "r1", Type: TypeProximity, Latitude: 0, Longitude: 0, RadiusM: 1000},
		{RuleID: "r2", Type: TypeProximity, Latitude: 0, Longitude: 0, RadiusM: 1000},
	}}
	m := newTestMatcher(t, src)

	got, err := m.MatchedRules(context.Background(), matchSubject, 0, 0, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].RuleID)
	assert.Equal(t, "r2", got[1].RuleID)
}

func TestMatcherCELCondition(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{RuleID: "daytime", Type: TypeProximity, RadiusM: 1000, Condition: "hour_utc >= 8 && hour_utc < 20"},
		{RuleID: "account", Type: TypeProximity, RadiusM: 1000, Condition: `account == "GA1"`},
		{RuleID: "other", Type: TypeProximity, RadiusM: 1000, Condition: `account == "GXX"`},
	}}
	m := newTestMatcher(t, src)

	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	got, err := m.MatchedRules(context.Background(), matchSubject, 0, 0, noon)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "daytime", got[0].RuleID)
	assert.Equal(t, "account", got[1].RuleID)

	midnight := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	got, err = m.MatchedRules(context.Background(), matchSubject, 0, 0, midnight)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "account", got[0].RuleID)
}

func TestMatcherBadConditionSkipsRule(t *testing.T) {
	src := &staticSource{rules: []Rule{
		{RuleID: "broken", Type: TypeProximity, RadiusM: 1000, Condition: "latitude + "},
		{RuleID: "fine", Type: TypeProximity, RadiusM: 1000},
	}}
	m := newTestMatcher(t, src)

	got, err := m.MatchedRules(context.Background(), matchSubject, 0, 0, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fine", got[0].RuleID)
}

func TestMatcherSourceErrorSurfaces(t *testing.T) {
	m := newTestMatcher(t, &staticSource{err: errors.New("db down")})
	_, err := m.MatchedRules(context.Background(), matchSubject, 0, 0, time.Now())
	assert.Error(t, err)
}

func TestValidateCreatePayload(t *testing.T) {
	valid := []byte(`{"name":"hq","rule_type":"GEOFENCE_ENTER","latitude":34.05,"longitude":-118.24,"radius_m":100}`)
	assert.NoError(t, ValidateCreatePayload(valid))

	for name, raw := range map[string]string{
		"missing name": `{"rule_type":"PROXIMITY","latitude":0,"longitude":0,"radius_m":1}`,
		"bad type":     `{"name":"x","rule_type":"EXIT","latitude":0,"longitude":0,"radius_m":1}`,
		"lat range":    `{"name":"x","rule_type":"PROXIMITY","latitude":91,"longitude":0,"radius_m":1}`,
		"zero radius":  `{"name":"x","rule_type":"PROXIMITY","latitude":0,"longitude":0,"radius_m":0}`,
		"extra field":  `{"name":"x","rule_type":"PROXIMITY","latitude":0,"longitude":0,"radius_m":1,"zz":true}`,
		"not json":     `{`,
	} {
		assert.Error(t, ValidateCreatePayload([]byte(raw)), name)
	}
}
