package reduce

import (
	"fmt"
	"math"

	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/mesh"
)

// Axis describes one dimension of a multi-dimensional binning: an explicit
// field, or one of the implicit spatial coordinates "x", "y", "z".
type Axis struct {
	Name string
	Min  float64
	Max  float64
	Bins int
}

// Binning reduction names.
const (
	BinSum   = "sum"
	BinMin   = "min"
	BinMax   = "max"
	BinAvg   = "avg"
	BinCount = "count"
	BinRms   = "rms"
	BinVar   = "var"
	BinStd   = "std"
	BinPdf   = "pdf"
)

// Binning is the dense result of binning a field over one or more axes: the
// reduced value per home index plus the sample count per bin.
type Binning struct {
	Field     string
	Axes      []Axis
	Reduction string
	Values    []float64
	Counts    []int64
}

// IsCoordAxis reports whether name is an implicit spatial axis.
func IsCoordAxis(name string) bool {
	return name == "x" || name == "y" || name == "z"
}

func coordComponent(name string) int {
	switch name {
	case "x":
		return 0
	case "y":
		return 1
	}
	return 2
}

// strides are row-major: the last axis varies fastest.
func strides(axes []Axis) []int {
	out := make([]int, len(axes))
	stride := 1
	for i := len(axes) - 1; i >= 0; i-- {
		out[i] = stride
		stride *= axes[i].Bins
	}
	return out
}

func totalBins(axes []Axis) int {
	n := 1
	for _, a := range axes {
		n *= a.Bins
	}
	return n
}

// HomeIndex computes the flat bin index of a sample given its per-axis
// values, or -1 if any axis drops the sample.
func HomeIndex(axes []Axis, sample []float64) int {
	st := strides(axes)
	home := 0
	for i, a := range axes {
		idx := binIndex(sample[i], a.Min, a.Max, a.Bins)
		if idx < 0 {
			return -1
		}
		home += idx * st[i]
	}
	return home
}

// axisSampler returns a function producing the axis value of one entity in
// a domain, given the binning association and topology.
func axisSampler(dom *mesh.Domain, axis Axis, topo string, assoc mesh.Association) (func(i int) (float64, error), error) {
	if IsCoordAxis(axis.Name) {
		comp := coordComponent(axis.Name)
		return func(i int) (float64, error) {
			p, err := dom.EntityLocation(topo, assoc, i)
			if err != nil {
				return 0, err
			}
			return p[comp], nil
		}, nil
	}
	f, ok := dom.Fields[axis.Name]
	if !ok {
		return nil, fmt.Errorf("%w: binning axis %q", mesh.ErrFieldMissing, axis.Name)
	}
	if f.Association != assoc {
		return nil, fmt.Errorf("%w: axis %q is %s-associated, binning runs on %s",
			mesh.ErrAssociationMismatch, axis.Name, f.Association, assoc)
	}
	return func(i int) (float64, error) { return f.Values[i], nil }, nil
}

// validateAxes rejects empty ranges and non-positive bin counts.
func validateAxes(axes []Axis) error {
	if len(axes) == 0 {
		return fmt.Errorf("%w: binning needs at least one axis", ErrNumericOutOfRange)
	}
	for _, a := range axes {
		if a.Bins < 1 {
			return fmt.Errorf("%w: axis %q needs at least one bin", ErrNumericOutOfRange, a.Name)
		}
		if !(a.Max > a.Min) {
			return fmt.Errorf("%w: axis %q range [%g, %g) is empty", ErrNumericOutOfRange, a.Name, a.Min, a.Max)
		}
	}
	return nil
}

// FieldBinning bins the named field over the given axes and applies the
// reduction per bin. The binned field fixes the topology and association;
// every explicit axis must share them, and the names are agreed across
// ranks before any collective so divergence fails deterministically.
func FieldBinning(c comm.Comm, ds *mesh.Dataset, field string, axes []Axis, reduction string) (*Binning, error) {
	if err := validateAxes(axes); err != nil {
		return nil, err
	}
	switch reduction {
	case BinSum, BinMin, BinMax, BinAvg, BinCount, BinRms, BinVar, BinStd, BinPdf:
	default:
		return nil, fmt.Errorf("%w: unknown binning reduction %q", ErrNumericOutOfRange, reduction)
	}

	// Pick up topology and association from the binned field locally, then
	// agree on them across the communicator.
	topo, assoc := "", mesh.Association("")
	for _, dom := range ds.Domains {
		if f, ok := dom.Fields[field]; ok {
			topo, assoc = f.Topology, f.Association
			break
		}
	}
	topoGlobal, err := comm.Agree(c, topo)
	if err != nil {
		return nil, err
	}
	assocGlobal, err := comm.Agree(c, string(assoc))
	if err != nil {
		return nil, err
	}
	if topoGlobal == "" {
		return nil, fieldError(ds, field)
	}
	topo, assoc = topoGlobal, mesh.Association(assocGlobal)

	n := totalBins(axes)
	sums := make([]float64, n)
	sqs := make([]float64, n)
	mins := make([]float64, n)
	maxs := make([]float64, n)
	counts := make([]int64, n)
	for i := range mins {
		mins[i] = math.Inf(1)
		maxs[i] = math.Inf(-1)
	}

	for _, dom := range ds.Domains {
		f, ok := dom.Fields[field]
		if !ok {
			continue
		}
		samplers := make([]func(int) (float64, error), len(axes))
		for ai, axis := range axes {
			samplers[ai], err = axisSampler(dom, axis, topo, assoc)
			if err != nil {
				return nil, err
			}
		}
		sample := make([]float64, len(axes))
		for i, v := range f.Values {
			for ai := range axes {
				if sample[ai], err = samplers[ai](i); err != nil {
					return nil, err
				}
			}
			home := HomeIndex(axes, sample)
			if home < 0 {
				continue
			}
			sums[home] += v
			sqs[home] += v * v
			counts[home]++
			mins[home] = math.Min(mins[home], v)
			maxs[home] = math.Max(maxs[home], v)
		}
	}

	sums = c.AllReduceSumFloats(sums)
	sqs = c.AllReduceSumFloats(sqs)
	counts = c.AllReduceSumInts(counts)
	mins = c.AllReduceMinFloats(mins)
	maxs = c.AllReduceMaxFloats(maxs)

	var total int64
	for _, ct := range counts {
		total += ct
	}

	values := make([]float64, n)
	for i := range values {
		ct := float64(counts[i])
		switch reduction {
		case BinSum:
			values[i] = sums[i]
		case BinCount:
			values[i] = ct
		case BinMin:
			if counts[i] > 0 {
				values[i] = mins[i]
			}
		case BinMax:
			if counts[i] > 0 {
				values[i] = maxs[i]
			}
		case BinAvg:
			if counts[i] > 0 {
				values[i] = sums[i] / ct
			}
		case BinRms:
			if counts[i] > 0 {
				values[i] = math.Sqrt(sqs[i] / ct)
			}
		case BinVar:
			if counts[i] > 0 {
				m := sums[i] / ct
				values[i] = sqs[i]/ct - m*m
			}
		case BinStd:
			if counts[i] > 0 {
				m := sums[i] / ct
				values[i] = math.Sqrt(sqs[i]/ct - m*m)
			}
		case BinPdf:
			if total > 0 {
				values[i] = ct / float64(total)
			}
		}
	}

	return &Binning{
		Field:     field,
		Axes:      axes,
		Reduction: reduction,
		Values:    values,
		Counts:    counts,
	}, nil
}

// PaintBinning writes a binning back onto the mesh: a new field whose value
// at every entity is the reduced value of the bin that entity falls in.
// Entities outside the binned range get NaN.
func PaintBinning(b *Binning, ds *mesh.Dataset, outField string) error {
	// The source field locates the topology and association to paint on.
	for _, dom := range ds.Domains {
		src, ok := dom.Fields[b.Field]
		if !ok {
			continue
		}
		samplers := make([]func(int) (float64, error), len(b.Axes))
		var err error
		for ai, axis := range b.Axes {
			samplers[ai], err = axisSampler(dom, axis, src.Topology, src.Association)
			if err != nil {
				return err
			}
		}
		painted := make([]float64, len(src.Values))
		sample := make([]float64, len(b.Axes))
		for i := range src.Values {
			for ai := range b.Axes {
				if sample[ai], err = samplers[ai](i); err != nil {
					return err
				}
			}
			if home := HomeIndex(b.Axes, sample); home >= 0 {
				painted[i] = b.Values[home]
			} else {
				painted[i] = math.NaN()
			}
		}
		dom.Fields[outField] = &mesh.Field{
			Topology:    src.Topology,
			Association: src.Association,
			Values:      painted,
		}
	}
	return nil
}
