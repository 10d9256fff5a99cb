package noise

import "math"

// lambertWm1 evaluates the lower branch W_{-1} of the Lambert W function
// for x in [-1/e, 0). Outside that interval the result is NaN.
//
// The initial guess uses the asymptotic form ln(-x) - ln(-ln(-x)) away
// from the branch point and the series in p = -sqrt(2(ex+1)) near it,
// then refines with Halley iterations.
func lambertWm1(x float64) float64 {
	const branchPoint = -1.0 / math.E

	if x < branchPoint || x >= 0 {
		if x >= branchPoint-1e-15 && x < 0 {
			return -1
		}
		return math.NaN()
	}
	if x == branchPoint {
		return -1
	}

	var w float64
	if x > -0.25 {
		// Asymptotic guess, accurate as x -> 0^-.
		l1 := math.Log(-x)
		w = l1 - math.Log(-l1)
	} else {
		// Branch-point series. The argument is non-negative for
		// x >= -1/e but may round slightly below zero.
		p := -math.Sqrt(math.Max(0, 2*(math.E*x+1)))
		w = -1 + p - p*p/3 + 11*p*p*p/72
	}

	for i := 0; i < 64; i++ {
		ew := math.Exp(w)
		f := w*ew - x
		wp1 := w + 1
		if wp1 == 0 {
			break
		}
		// Halley step.
		dw := f / (ew*wp1 - (w+2)*f/(2*wp1))
		w -= dw
		if math.Abs(dw) <= 1e-14*(1+math.Abs(w)) {
			break
		}
	}
	return w
}
