// Package reduce implements the blueprint-field reductions the expression
// builtins consume: extrema with location attributes, sums, averages,
// NaN/Inf counts, histograms and their derived statistics, and
// multi-dimensional binning. Semantics are point-wise per domain, then
// reduced across ranks over the workspace communicator.
package reduce

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/mesh"
)

// ErrNumericOutOfRange flags reduction parameters that make no numeric
// sense (empty ranges, non-positive bin counts).
var ErrNumericOutOfRange = fmt.Errorf("numeric parameter out of range")

// Aggregate is the result of an extremum reduction: the winning value plus
// where it lives.
type Aggregate struct {
	Value    float64
	Index    int
	DomainID int
	Rank     int
	Position [3]float64
}

// fieldError builds the diagnostic for a missing field, listing what the
// dataset does carry.
func fieldError(ds *mesh.Dataset, field string) error {
	names := ds.FieldNames()
	sort.Strings(names)
	return fmt.Errorf("%w: %q, known = [%s]",
		mesh.ErrFieldMissing, field, strings.Join(names, " "))
}

// localExtremum scans every domain for the best value under cmp. Returns
// false if no domain carries the field.
func localExtremum(ds *mesh.Dataset, field string, better func(a, b float64) bool) (Aggregate, bool, error) {
	best := Aggregate{Index: -1}
	found := false
	for _, dom := range ds.Domains {
		f, ok := dom.Fields[field]
		if !ok {
			continue
		}
		for i, v := range f.Values {
			if !found || better(v, best.Value) {
				pos, err := dom.EntityLocation(f.Topology, f.Association, i)
				if err != nil {
					return Aggregate{}, false, err
				}
				best = Aggregate{
					Value:    v,
					Index:    i,
					DomainID: dom.State.DomainID,
					Position: pos,
				}
				found = true
			}
		}
	}
	return best, found, nil
}

// extremum reduces a local winner across ranks with MINLOC/MAXLOC and
// broadcasts the winner's side attributes.
func extremum(c comm.Comm, ds *mesh.Dataset, field string, min bool) (*Aggregate, error) {
	better := func(a, b float64) bool { return a > b }
	missing := math.Inf(-1)
	if min {
		better = func(a, b float64) bool { return a < b }
		missing = math.Inf(1)
	}

	local, found, err := localExtremum(ds, field, better)
	if err != nil {
		return nil, err
	}
	sentinel := missing
	if found {
		sentinel = local.Value
	}

	foundAnywhere := c.AllReduceSumFloats([]float64{boolToFloat(found)})
	if foundAnywhere[0] == 0 {
		return nil, fieldError(ds, field)
	}

	var value float64
	var winner int
	if min {
		value, winner = c.MinLoc(sentinel)
	} else {
		value, winner = c.MaxLoc(sentinel)
	}

	// The winning rank broadcasts position, index and domain id; the
	// exchange is length-agnostic.
	atts := make([]float64, 5)
	if c.Rank() == winner {
		atts[0], atts[1], atts[2] = local.Position[0], local.Position[1], local.Position[2]
		atts[3] = float64(local.Index)
		atts[4] = float64(local.DomainID)
	}
	atts = c.BroadcastFloats(atts, winner)

	return &Aggregate{
		Value:    value,
		Index:    int(atts[3]),
		DomainID: int(atts[4]),
		Rank:     winner,
		Position: [3]float64{atts[0], atts[1], atts[2]},
	}, nil
}

// FieldMin returns the global minimum of a field and its location.
func FieldMin(c comm.Comm, ds *mesh.Dataset, field string) (*Aggregate, error) {
	return extremum(c, ds, field, true)
}

// FieldMax returns the global maximum of a field and its location.
func FieldMax(c comm.Comm, ds *mesh.Dataset, field string) (*Aggregate, error) {
	return extremum(c, ds, field, false)
}

// FieldSum returns the global sum of a field and the global sample count.
func FieldSum(c comm.Comm, ds *mesh.Dataset, field string) (float64, int64, error) {
	var sum float64
	var count int64
	found := false
	for _, dom := range ds.Domains {
		f, ok := dom.Fields[field]
		if !ok {
			continue
		}
		found = true
		for _, v := range f.Values {
			sum += v
		}
		count += int64(len(f.Values))
	}

	global := c.AllReduceSumFloats([]float64{sum, boolToFloat(found)})
	counts := c.AllReduceSumInts([]int64{count})
	if global[1] == 0 {
		return 0, 0, fieldError(ds, field)
	}
	return global[0], counts[0], nil
}

// FieldAvg returns the global mean of a field.
func FieldAvg(c comm.Comm, ds *mesh.Dataset, field string) (float64, error) {
	sum, count, err := FieldSum(c, ds, field)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: field %q has no samples", mesh.ErrEmptyDomain, field)
	}
	return sum / float64(count), nil
}

// FieldNanCount counts NaN samples across all domains and ranks.
func FieldNanCount(c comm.Comm, ds *mesh.Dataset, field string) (int64, error) {
	return countIf(c, ds, field, func(v float64) bool { return math.IsNaN(v) })
}

// FieldInfCount counts infinite samples across all domains and ranks.
func FieldInfCount(c comm.Comm, ds *mesh.Dataset, field string) (int64, error) {
	return countIf(c, ds, field, func(v float64) bool { return math.IsInf(v, 0) })
}

func countIf(c comm.Comm, ds *mesh.Dataset, field string, pred func(float64) bool) (int64, error) {
	var count int64
	found := false
	for _, dom := range ds.Domains {
		f, ok := dom.Fields[field]
		if !ok {
			continue
		}
		found = true
		for _, v := range f.Values {
			if pred(v) {
				count++
			}
		}
	}
	counts := c.AllReduceSumInts([]int64{count, int64(boolToFloat(found))})
	if counts[1] == 0 {
		return 0, fieldError(ds, field)
	}
	return counts[0], nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
