package noise

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/softspot/proximity/pkg/geodist"
)

// Big Ben. High-latitude enough to catch longitude scaling mistakes.
const (
	testLat = 51.5007
	testLon = -0.1246
)

func TestPerturbBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m := NewWithRand(DefaultEpsilon, DefaultRMaxKM, DefaultGridUnit, rng)

	const samples = 10000
	var maxDist float64
	for i := 0; i < samples; i++ {
		lat, lon := m.Perturb(testLat, testLon)

		d := geodist.Kilometers(testLat, testLon, lat, lon)
		if d > maxDist {
			maxDist = d
		}
		if d > DefaultRMaxKM+0.001 {
			t.Fatalf("sample %d: displacement %.6f km exceeds %.3f km", i, d, DefaultRMaxKM+0.001)
		}

		assertOnGrid(t, lat, DefaultGridUnit)
		assertOnGrid(t, lon, DefaultGridUnit)
	}

	// The mechanism should actually move points, not just pass them
	// through.
	if maxDist < 0.1 {
		t.Errorf("max displacement over %d samples = %.4f km, mechanism looks inert", samples, maxDist)
	}
}

func assertOnGrid(t *testing.T, v, grid float64) {
	t.Helper()
	nearest := math.Round(v/grid) * grid
	if math.Abs(v-nearest) > 1e-9 {
		t.Fatalf("coordinate %.10f is not a multiple of the grid unit %g", v, grid)
	}
}

func TestPerturbDistributionSpread(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	m := NewWithRand(DefaultEpsilon, DefaultRMaxKM, DefaultGridUnit, rng)

	const samples = 5000
	var sum float64
	distinct := make(map[[2]float64]struct{})
	for i := 0; i < samples; i++ {
		lat, lon := m.Perturb(testLat, testLon)
		sum += geodist.Kilometers(testLat, testLon, lat, lon)
		distinct[[2]float64{lat, lon}] = struct{}{}
	}

	// The untruncated radial mean is 2/epsilon km; truncation at 3 km
	// pulls it down. Generous bounds, this is a sanity check not a
	// statistical test.
	mean := sum / samples
	if mean < 0.5 || mean > 2.5 {
		t.Errorf("mean displacement %.3f km outside plausible range [0.5, 2.5]", mean)
	}
	if len(distinct) < samples/10 {
		t.Errorf("only %d distinct release points from %d samples", len(distinct), samples)
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	m := New(0, -1, 0)
	if m.epsilon != DefaultEpsilon || m.rmaxKM != DefaultRMaxKM || m.gridUnit != DefaultGridUnit {
		t.Errorf("New(0, -1, 0) = {%g %g %g}, want defaults {%g %g %g}",
			m.epsilon, m.rmaxKM, m.gridUnit, DefaultEpsilon, DefaultRMaxKM, DefaultGridUnit)
	}
}

func TestPerturbSmallRadius(t *testing.T) {
	// A tight rmax forces the truncation path on essentially every
	// sample; the bound must still hold.
	rng := rand.New(rand.NewPCG(3, 9))
	m := NewWithRand(DefaultEpsilon, 0.5, DefaultGridUnit, rng)

	for i := 0; i < 2000; i++ {
		lat, lon := m.Perturb(testLat, testLon)
		if d := geodist.Kilometers(testLat, testLon, lat, lon); d > 0.501 {
			t.Fatalf("sample %d: displacement %.6f km exceeds 0.501 km", i, d)
		}
	}
}
