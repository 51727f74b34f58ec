package anchor

import (
	"testing"
	"time"
)

func TestEventIDDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
	a := EventID("GABC", EventCheckpoint, at, "34.051000_-118.244000", "")
	b := EventID("GABC", EventCheckpoint, at, "34.051000_-118.244000", "")
	if a != b {
		t.Fatalf("repeated calls differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestEventIDMinuteBucket(t *testing.T) {
	base := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	early := base.Add(2 * time.Second)
	late := base.Add(58 * time.Second)
	next := base.Add(61 * time.Second)

	cell := "34.051000_-118.244000"
	if EventID("GABC", EventRuleTriggered, early, cell, "r1") !=
		EventID("GABC", EventRuleTriggered, late, cell, "r1") {
		t.Fatal("events inside the same minute must share an id")
	}
	if EventID("GABC", EventRuleTriggered, early, cell, "r1") ==
		EventID("GABC", EventRuleTriggered, next, cell, "r1") {
		t.Fatal("events in different minutes must not share an id")
	}
}

func TestEventIDVariesByInput(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	cell := "34.051000_-118.244000"
	base := EventID("GABC", EventRuleTriggered, at, cell, "r1")

	for name, got := range map[string]string{
		"account": EventID("GDEF", EventRuleTriggered, at, cell, "r1"),
		"type":    EventID("GABC", EventCheckpoint, at, cell, "r1"),
		"cell":    EventID("GABC", EventRuleTriggered, at, "0.000000_0.000000", "r1"),
		"rule":    EventID("GABC", EventRuleTriggered, at, cell, "r2"),
	} {
		if got == base {
			t.Errorf("changing %s did not change the event id", name)
		}
	}
}

func TestEventIDNonUTCInput(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	at := time.Date(2026, 3, 14, 7, 9, 26, 0, loc)
	utc := at.UTC()
	if EventID("GABC", EventCheckpoint, at, "c", "") !=
		EventID("GABC", EventCheckpoint, utc, "c", "") {
		t.Fatal("event id must be timezone independent")
	}
}
