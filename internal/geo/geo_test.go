package geo

import (
	"math"
	"testing"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 1.3521, Lng: 103.8198}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("Distance(p, p) = %v, want 0", d)
	}
}

func TestDistanceOneHundredthDegreeLatitude(t *testing.T) {
	// 0.01 degrees of latitude is roughly 1.11 km.
	d := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0.01, Lng: 0})
	if math.Abs(d-1.11) > 0.01 {
		t.Fatalf("Distance = %v, want ~1.11", d)
	}
}

func TestDistanceIsSymmetricAndNonNegative(t *testing.T) {
	a := Point{Lat: 1.3521, Lng: 103.8198}
	b := Point{Lat: 1.3644, Lng: 103.9915}
	d1, d2 := Distance(a, b), Distance(b, a)
	if d1 < 0 {
		t.Fatalf("Distance = %v, want non-negative", d1)
	}
	if math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("Distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestRoundKM(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1.1123, 1.1},
		{1.15, 1.2},
		{2.649, 2.6},
		{10.05, 10.1},
	}
	for _, c := range cases {
		if got := RoundKM(c.in); got != c.want {
			t.Errorf("RoundKM(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
