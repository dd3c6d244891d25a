package reduce

import (
	"fmt"
	"math"

	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/mesh"
)

// Histogram is a dense 1-D binning of a field over [Min, Max). Samples
// outside the range are dropped; the drop is the documented out-of-range
// policy for every call in this package.
type Histogram struct {
	Field string
	Min   float64
	Max   float64
	Bins  []float64
}

// binIndex maps a sample to its bin, or -1 if it falls outside [min, max).
func binIndex(v, min, max float64, bins int) int {
	if v < min || v >= max {
		return -1
	}
	idx := int(math.Floor((v - min) * float64(bins) / (max - min)))
	if idx < 0 {
		return 0
	}
	if idx >= bins {
		return bins - 1
	}
	return idx
}

// FieldHistogram bins a field per domain and SUM-reduces the bins across
// ranks.
func FieldHistogram(c comm.Comm, ds *mesh.Dataset, field string, min, max float64, bins int) (*Histogram, error) {
	if bins < 1 {
		return nil, fmt.Errorf("%w: histogram needs at least one bin, got %d", ErrNumericOutOfRange, bins)
	}
	if !(max > min) {
		return nil, fmt.Errorf("%w: histogram range [%g, %g) is empty", ErrNumericOutOfRange, min, max)
	}

	counts := make([]float64, bins)
	found := false
	for _, dom := range ds.Domains {
		f, ok := dom.Fields[field]
		if !ok {
			continue
		}
		found = true
		for _, v := range f.Values {
			if idx := binIndex(v, min, max, bins); idx >= 0 {
				counts[idx]++
			}
		}
	}

	payload := append(counts, boolToFloat(found))
	payload = c.AllReduceSumFloats(payload)
	if payload[bins] == 0 {
		return nil, fieldError(ds, field)
	}
	return &Histogram{Field: field, Min: min, Max: max, Bins: payload[:bins]}, nil
}

// Entropy computes -sum p_i ln p_i over the non-zero bins.
func Entropy(h *Histogram) (float64, error) {
	var total float64
	for _, b := range h.Bins {
		total += b
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: histogram of %q is empty", mesh.ErrEmptyDomain, h.Field)
	}
	var entropy float64
	for _, b := range h.Bins {
		if b > 0 {
			p := b / total
			entropy -= p * math.Log(p)
		}
	}
	return entropy, nil
}

// Pdf normalizes bin counts to probabilities.
func Pdf(h *Histogram) (*Histogram, error) {
	var total float64
	for _, b := range h.Bins {
		total += b
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: histogram of %q is empty", mesh.ErrEmptyDomain, h.Field)
	}
	out := &Histogram{Field: h.Field, Min: h.Min, Max: h.Max, Bins: make([]float64, len(h.Bins))}
	for i, b := range h.Bins {
		out.Bins[i] = b / total
	}
	return out, nil
}

// Cdf computes the cumulative distribution of a histogram.
func Cdf(h *Histogram) (*Histogram, error) {
	pdf, err := Pdf(h)
	if err != nil {
		return nil, err
	}
	running := 0.0
	for i, p := range pdf.Bins {
		running += p
		pdf.Bins[i] = running
	}
	return pdf, nil
}

// Quantile interpolation modes.
const (
	InterpLinear   = "linear"
	InterpLower    = "lower"
	InterpHigher   = "higher"
	InterpMidpoint = "midpoint"
	InterpNearest  = "nearest"
)

// Quantile inverts a CDF at probability q. The returned value is a bin
// lower edge, resolved between the straddling bins per the interpolation
// mode.
func Quantile(cdf *Histogram, q float64, interpolation string) (float64, error) {
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("%w: quantile %g outside [0, 1]", ErrNumericOutOfRange, q)
	}
	bins := len(cdf.Bins)
	width := (cdf.Max - cdf.Min) / float64(bins)
	edge := func(i int) float64 { return cdf.Min + width*float64(i) }

	// First bin whose cumulative probability reaches q.
	higher := bins - 1
	for i, p := range cdf.Bins {
		if p >= q {
			higher = i
			break
		}
	}
	lower := higher
	if higher > 0 && cdf.Bins[higher-1] < q {
		lower = higher - 1
	}
	if lower == higher {
		return edge(higher), nil
	}

	switch interpolation {
	case InterpLower:
		return edge(lower), nil
	case InterpHigher:
		return edge(higher), nil
	case InterpMidpoint:
		return (edge(lower) + edge(higher)) / 2, nil
	case InterpNearest:
		span := cdf.Bins[higher] - cdf.Bins[lower]
		if span > 0 && (q-cdf.Bins[lower])/span > 0.5 {
			return edge(higher), nil
		}
		return edge(lower), nil
	case InterpLinear, "":
		span := cdf.Bins[higher] - cdf.Bins[lower]
		if span == 0 {
			return edge(lower), nil
		}
		t := (q - cdf.Bins[lower]) / span
		return edge(lower) + t*(edge(higher)-edge(lower)), nil
	}
	return 0, fmt.Errorf("%w: unknown interpolation %q", ErrNumericOutOfRange, interpolation)
}
