package drift

import "math"

// psi computes the Population Stability Index between an expected
// sample E and an actual sample A, per spec.md §4.2: 10 equal-width
// bins over the joint range, proportions floored to 1e-10 to avoid
// log-zero.
func psi(expected, actual []float64) float64 {
	const bins = 10
	const floor = 1e-10

	lo, hi := jointRange(expected, actual)
	if lo == hi {
		return 0
	}

	eCounts := histogram(expected, lo, hi, bins)
	aCounts := histogram(actual, lo, hi, bins)

	var sum float64
	for i := 0; i < bins; i++ {
		e := float64(eCounts[i]) / float64(len(expected))
		a := float64(aCounts[i]) / float64(len(actual))
		if e < floor {
			e = floor
		}
		if a < floor {
			a = floor
		}
		sum += (a - e) * math.Log(a/e)
	}
	return sum
}

func jointRange(a, b []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range [][]float64{a, b} {
		for _, v := range s {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

func histogram(values []float64, lo, hi float64, bins int) []int {
	counts := make([]int, bins)
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	return counts
}

// ksTest runs the two-sample Kolmogorov-Smirnov test and returns the
// KS statistic D and its asymptotic p-value.
func ksTest(a, b []float64) (d, p float64) {
	sa := sortedCopy(a)
	sb := sortedCopy(b)

	i, j := 0, 0
	var cdfA, cdfB float64
	n, m := float64(len(sa)), float64(len(sb))

	for i < len(sa) && j < len(sb) {
		switch {
		case sa[i] <= sb[j]:
			i++
			cdfA = float64(i) / n
		default:
			j++
			cdfB = float64(j) / m
		}
		diff := math.Abs(cdfA - cdfB)
		if diff > d {
			d = diff
		}
	}
	// drain any remaining ties at the end of either sample.
	for i < len(sa) {
		i++
		cdfA = float64(i) / n
		if diff := math.Abs(cdfA - cdfB); diff > d {
			d = diff
		}
	}
	for j < len(sb) {
		j++
		cdfB = float64(j) / m
		if diff := math.Abs(cdfA - cdfB); diff > d {
			d = diff
		}
	}

	ne := n * m / (n + m)
	p = ksPValue(d, ne)
	return d, p
}

// ksPValue is the Kolmogorov asymptotic approximation for the
// two-sided significance of the KS statistic.
func ksPValue(d, effectiveN float64) float64 {
	if effectiveN <= 0 {
		return 1
	}
	lambda := (math.Sqrt(effectiveN) + 0.12 + 0.11/math.Sqrt(effectiveN)) * d
	if lambda < 0.2 {
		return 1
	}
	var sum float64
	for k := 1; k <= 100; k++ {
		term := 2 * math.Pow(-1, float64(k-1)) * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
	}
	p := clamp01(sum)
	return p
}

func sortedCopy(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	insertionSort(out)
	return out
}

// insertionSort keeps stats.go free of a sort import for these small
// (<=1000 element) windows; drift windows are bounded by baseline_window.
func insertionSort(vals []float64) {
	for i := 1; i < len(vals); i++ {
		key := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > key {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = key
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func variance(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(vals)-1)
}

// welchTTest returns Welch's two-sample t-test p-value for a
// difference in means between a and b.
func welchTTest(a, b []float64) (p float64) {
	if len(a) < 2 || len(b) < 2 {
		return 1
	}
	ma, mb := mean(a), mean(b)
	va, vb := variance(a, ma), variance(b, mb)
	na, nb := float64(len(a)), float64(len(b))

	se2 := va/na + vb/nb
	if se2 <= 0 {
		if ma == mb {
			return 1
		}
		return 0
	}
	t := (ma - mb) / math.Sqrt(se2)

	// Welch-Satterthwaite degrees of freedom.
	num := se2 * se2
	den := (va*va)/(na*na*(na-1)) + (vb*vb)/(nb*nb*(nb-1))
	df := num / den
	if df < 1 {
		df = 1
	}

	return studentTTwoSidedP(t, df)
}

// studentTTwoSidedP approximates the two-sided p-value of the Student's
// t distribution via the regularized incomplete beta function.
func studentTTwoSidedP(t, df float64) float64 {
	x := df / (df + t*t)
	ib := incompleteBeta(x, df/2, 0.5)
	return clamp01(ib)
}

// incompleteBeta computes the regularized incomplete beta function
// I_x(a, b) via a continued-fraction expansion (Numerical Recipes
// formulation).
func incompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lbeta := lgamma(a+b) - lgamma(a) - lgamma(b)
	front := math.Exp(lbeta + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(x, a, b) / a
	}
	return 1 - front*betaContinuedFraction(1-x, b, a)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

func betaContinuedFraction(x, a, b float64) float64 {
	const maxIter = 200
	const eps = 3e-12
	const tiny = 1e-30

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}
