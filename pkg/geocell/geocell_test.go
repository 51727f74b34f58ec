package geocell

import (
	"testing"
)

func TestQuantizeStable(t *testing.T) {
	a := Quantize(34.0512, -118.2437, DefaultPrecision)
	b := Quantize(34.0512, -118.2437, DefaultPrecision)
	if a != b {
		t.Fatalf("same input produced different cells: %s vs %s", a, b)
	}
	if a != "34.051000_-118.244000" {
		t.Fatalf("unexpected cell: %s", a)
	}
}

func TestQuantizeSameBucket(t *testing.T) {
	// Both values sit inside the [34.000, 34.001) bucket.
	a := Quantize(34.0009999, 0, DefaultPrecision)
	b := Quantize(34.0005, 0, DefaultPrecision)
	if a != b {
		t.Fatalf("expected same bucket, got %s vs %s", a, b)
	}
	if a != "34.000000_0.000000" {
		t.Fatalf("unexpected cell: %s", a)
	}
}

func TestQuantizeBucketBoundary(t *testing.T) {
	// Exact grid line floors into its own bucket, just below floors lower.
	on := Quantize(34.001, 0, DefaultPrecision)
	below := Quantize(34.0009999, 0, DefaultPrecision)
	if on == below {
		t.Fatalf("boundary value should open a new bucket: %s", on)
	}
}

func TestQuantizeNegativeFloorsDown(t *testing.T) {
	got := Quantize(-0.0001, -0.0001, DefaultPrecision)
	if got != "-0.001000_-0.001000" {
		t.Fatalf("negative coordinates must floor toward -inf, got %s", got)
	}
}

func TestQuantizeZero(t *testing.T) {
	if got := Quantize(0, 0, DefaultPrecision); got != "0.000000_0.000000" {
		t.Fatalf("unexpected cell for origin: %s", got)
	}
}

func TestQuantizeCoarsePrecision(t *testing.T) {
	got := Quantize(34.0512, -118.2437, 0.01)
	if got != "34.050000_-118.250000" {
		t.Fatalf("unexpected cell at 0.01 precision: %s", got)
	}
}

func TestQuantizeExtremes(t *testing.T) {
	for _, tc := range []struct {
		lat, lon float64
		want     string
	}{
		{90, 180, "90.000000_180.000000"},
		{-90, -180, "-90.000000_-180.000000"},
	} {
		if got := Quantize(tc.lat, tc.lon, DefaultPrecision); got != tc.want {
			t.Errorf("Quantize(%v, %v) = %s, want %s", tc.lat, tc.lon, got, tc.want)
		}
	}
}
