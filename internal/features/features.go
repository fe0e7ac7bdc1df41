package features

import "math"

// Summary holds the statistics computed for one EEG sample.
type Summary struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Length int     `json:"length"`
}

// Values with a larger magnitude are summed in scaled form so the sums
// cannot overflow.
const scaleAbove = 1e100

// Compute summarises samples. Std is the sample standard deviation (n-1 in
// the denominator) and is 0 for fewer than two samples. An empty input
// yields the zero Summary.
func Compute(samples []float64) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}

	s := Summary{
		Min:    samples[0],
		Max:    samples[0],
		Length: n,
	}

	var peak float64
	for _, v := range samples {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		peak = math.Max(peak, math.Abs(v))
	}
	scale := 1.0
	if peak > scaleAbove {
		scale = peak
	}

	var sum float64
	for _, v := range samples {
		sum += v / scale
	}
	mean := sum / float64(n)
	s.Mean = mean * scale

	if n > 1 {
		var sq float64
		for _, v := range samples {
			d := v/scale - mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq/float64(n-1)) * scale
	}

	return s
}

// Finite reports whether every statistic is a finite number. A spread close
// to the float64 range can still overflow Std.
func (s Summary) Finite() bool {
	for _, v := range [...]float64{s.Mean, s.Std, s.Min, s.Max} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}
