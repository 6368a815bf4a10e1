package features

import "math"

// Mean returns the arithmetic mean of xs, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Stdev returns the population standard deviation of xs.
func Stdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := Mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// ZScore returns the z-score of the last element of xs against the
// population mean and stdev of the whole slice. The second return is false
// when the slice is too short or the series is constant.
func ZScore(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	sd := Stdev(xs)
	if sd == 0 {
		return 0, false
	}
	return (xs[len(xs)-1] - Mean(xs)) / sd, true
}

// Pearson returns the Pearson correlation of a and b. Mismatched lengths,
// short series, and constant legs all degrade to 0 rather than erroring.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ma, mb := Mean(a), Mean(b)
	var cov, va, vb float64
	for i := range a {
		da := a[i] - ma
		db := b[i] - mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// PctChange returns the percentage change between the last element of xs and
// the element offset samples back. Offsets are index-based, not wall-clock.
func PctChange(xs []float64, offset int) (float64, bool) {
	if offset <= 0 || len(xs) <= offset {
		return 0, false
	}
	prev := xs[len(xs)-1-offset]
	if prev == 0 {
		return 0, false
	}
	return (xs[len(xs)-1] - prev) / prev * 100, true
}

// Returns converts a price series into simple returns, skipping zero bases.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

// Tail returns the last n elements of xs, or xs itself when shorter.
func Tail(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
