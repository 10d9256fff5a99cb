// Package noise implements the planar Laplace mechanism for
// epsilon-geo-indistinguishability.
//
// A true (latitude, longitude) is perturbed by a polar offset whose radial
// component follows the 2-D symmetric Laplace distribution, sampled by
// inverting its CDF via the lower branch of the Lambert W function. The
// offset is then truncated to a maximum displacement and snapped to a
// coordinate grid; both steps are post-processing and preserve the
// privacy guarantee.
//
// The mechanism runs on the client: only the perturbed point is ever sent
// to the server.
package noise

import (
	"math"
	"math/rand/v2"

	"github.com/softspot/proximity/pkg/geodist"
)

// Default mechanism parameters.
const (
	DefaultEpsilon  = 1.1    // privacy budget per release
	DefaultRMaxKM   = 3.0    // maximum displacement in km
	DefaultGridUnit = 0.0005 // grid resolution in degrees
)

// kmPerDegree is the approximate length of one degree of latitude.
const kmPerDegree = 111.32

// Mechanism perturbs coordinates under epsilon-geo-indistinguishability.
type Mechanism struct {
	epsilon  float64
	rmaxKM   float64
	gridUnit float64
	randF    func() float64
}

// New returns a mechanism with the given parameters. Non-positive
// arguments fall back to the package defaults.
func New(epsilon, rmaxKM, gridUnit float64) *Mechanism {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	if rmaxKM <= 0 {
		rmaxKM = DefaultRMaxKM
	}
	if gridUnit <= 0 {
		gridUnit = DefaultGridUnit
	}
	return &Mechanism{
		epsilon:  epsilon,
		rmaxKM:   rmaxKM,
		gridUnit: gridUnit,
		randF:    rand.Float64,
	}
}

// NewWithRand is like New but draws randomness from rng. Used by tests
// that need a deterministic sample stream.
func NewWithRand(epsilon, rmaxKM, gridUnit float64, rng *rand.Rand) *Mechanism {
	m := New(epsilon, rmaxKM, gridUnit)
	m.randF = rng.Float64
	return m
}

// samplePolar draws the polar offset: a uniform angle and a radius in km
// distributed as the radial component of the planar Laplace distribution.
func (m *Mechanism) samplePolar() (radiusKM, theta float64) {
	theta = 2 * math.Pi * m.randF()
	u := m.randF()
	radiusKM = -1 / m.epsilon * (lambertWm1((u-1)/math.E) + 1)
	return radiusKM, theta
}

// Perturb returns a release point for the true point (lat, lon). The
// result is never farther than rmax km from the input and each coordinate
// is a multiple of the grid unit.
func (m *Mechanism) Perturb(lat, lon float64) (float64, float64) {
	radius, theta := m.samplePolar()

	dLat := radius * math.Cos(theta) / kmPerDegree
	dLon := radius * math.Sin(theta) / (kmPerDegree * math.Cos(lat*math.Pi/180))

	noisyLat := lat + dLat
	noisyLon := lon + dLon

	// Truncate to rmax less the worst-case snap displacement, so the
	// grid-snapped release never exceeds rmax. The random scale keeps
	// truncated releases from piling up on the truncation circle.
	limit := math.Max(0, m.rmaxKM-m.snapMarginKM())
	if dist := geodist.Kilometers(lat, lon, noisyLat, noisyLon); dist > limit {
		scale := limit / dist * (0.7 + 0.3*m.randF())
		noisyLat = lat + (noisyLat-lat)*scale
		noisyLon = lon + (noisyLon-lon)*scale
	}

	noisyLat = m.snap(noisyLat)
	noisyLon = m.snap(noisyLon)
	return noisyLat, noisyLon
}

// snapMarginKM bounds how far grid snapping can move a point: half a grid
// unit per axis, taken along the diagonal at one degree = 111.32 km.
func (m *Mechanism) snapMarginKM() float64 {
	return m.gridUnit / 2 * math.Sqrt2 * kmPerDegree
}

// snap rounds v to the nearest multiple of the grid unit.
func (m *Mechanism) snap(v float64) float64 {
	return math.Round(v/m.gridUnit) * m.gridUnit
}
