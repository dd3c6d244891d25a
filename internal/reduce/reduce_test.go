package reduce

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/mesh"
)

// lineDataset builds a single-domain 1-D uniform mesh carrying one field.
// Vertices sit at x = 0, 1, 2, ...; element centers at x = 0.5, 1.5, ...
func lineDataset(field string, assoc mesh.Association, values []float64, domainID int) *mesh.Dataset {
	verts := len(values)
	if assoc == mesh.AssocElement {
		verts = len(values) + 1
	}
	dom := &mesh.Domain{
		Coordsets: map[string]*mesh.Coordset{
			"coords": {
				Type:    mesh.CoordsUniform,
				Dims:    [3]int{verts, 1, 1},
				Origin:  [3]float64{0, 0, 0},
				Spacing: [3]float64{1, 1, 1},
			},
		},
		Topologies: map[string]*mesh.Topology{
			"mesh": {Type: mesh.TopoUniform, Coordset: "coords"},
		},
		Fields: map[string]*mesh.Field{
			field: {Topology: "mesh", Association: assoc, Values: values},
		},
		State: mesh.State{Cycle: 100, Time: 1.0, DomainID: domainID},
	}
	return &mesh.Dataset{Domains: []*mesh.Domain{dom}}
}

// onRanks runs fn once per rank of a fresh loopback group.
func onRanks(t *testing.T, size int, fn func(c comm.Comm)) {
	t.Helper()
	g := comm.NewGroup(size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(c comm.Comm) {
			defer wg.Done()
			fn(c)
		}(g.Rank(r))
	}
	wg.Wait()
}

func TestFieldMaxCarriesLocation(t *testing.T) {
	ds := lineDataset("braid", mesh.AssocVertex, []float64{5, 1, 9}, 3)
	require.NoError(t, mesh.Verify(ds))

	agg, err := FieldMax(comm.Serial{}, ds, "braid")
	require.NoError(t, err)
	assert.Equal(t, 9.0, agg.Value)
	assert.Equal(t, 2, agg.Index)
	assert.Equal(t, 3, agg.DomainID)
	assert.Equal(t, 0, agg.Rank)
	assert.Equal(t, [3]float64{2, 0, 0}, agg.Position)
}

func TestFieldMinElementAssociation(t *testing.T) {
	ds := lineDataset("radial", mesh.AssocElement, []float64{4, -2, 7}, 0)
	require.NoError(t, mesh.Verify(ds))

	agg, err := FieldMin(comm.Serial{}, ds, "radial")
	require.NoError(t, err)
	assert.Equal(t, -2.0, agg.Value)
	assert.Equal(t, 1, agg.Index)
	assert.Equal(t, [3]float64{1.5, 0, 0}, agg.Position)
}

func TestFieldMissingListsKnownFields(t *testing.T) {
	ds := lineDataset("braid", mesh.AssocVertex, []float64{1, 2}, 0)
	_, err := FieldMax(comm.Serial{}, ds, "nope")
	require.ErrorIs(t, err, mesh.ErrFieldMissing)
	assert.Contains(t, err.Error(), "braid")
}

func TestFieldSumAndAvg(t *testing.T) {
	ds := lineDataset("f", mesh.AssocVertex, []float64{1, 2, 3, 4}, 0)

	sum, count, err := FieldSum(comm.Serial{}, ds, "f")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum)
	assert.Equal(t, int64(4), count)

	avg, err := FieldAvg(comm.Serial{}, ds, "f")
	require.NoError(t, err)
	assert.Equal(t, 2.5, avg)
}

func TestNanAndInfCounts(t *testing.T) {
	ds := lineDataset("f", mesh.AssocVertex,
		[]float64{1, math.NaN(), math.Inf(1), math.Inf(-1), math.NaN()}, 0)

	nans, err := FieldNanCount(comm.Serial{}, ds, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nans)

	infs, err := FieldInfCount(comm.Serial{}, ds, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(2), infs)
}

func TestExtremaAcrossRanks(t *testing.T) {
	perRank := [][]float64{
		{1, 2, 3},
		{0, 4, 2},
		{1, 1, 1},
	}
	onRanks(t, 3, func(c comm.Comm) {
		ds := lineDataset("f", mesh.AssocVertex, perRank[c.Rank()], c.Rank())

		max, err := FieldMax(c, ds, "f")
		require.NoError(t, err)
		assert.Equal(t, 4.0, max.Value)
		assert.Equal(t, 1, max.Rank)
		assert.Equal(t, 1, max.Index)
		assert.Equal(t, 1, max.DomainID)
		assert.Equal(t, [3]float64{1, 0, 0}, max.Position)

		min, err := FieldMin(c, ds, "f")
		require.NoError(t, err)
		assert.Equal(t, 0.0, min.Value)
		assert.Equal(t, 1, min.Rank)
		assert.Equal(t, 0, min.Index)
	})
}

func TestRankWithoutFieldStillParticipates(t *testing.T) {
	onRanks(t, 2, func(c comm.Comm) {
		var ds *mesh.Dataset
		if c.Rank() == 0 {
			ds = lineDataset("f", mesh.AssocVertex, []float64{10, 20}, 0)
		} else {
			ds = lineDataset("other", mesh.AssocVertex, []float64{1}, 1)
		}

		max, err := FieldMax(c, ds, "f")
		require.NoError(t, err)
		assert.Equal(t, 20.0, max.Value)
		assert.Equal(t, 0, max.Rank)

		sum, count, err := FieldSum(c, ds, "f")
		require.NoError(t, err)
		assert.Equal(t, 30.0, sum)
		assert.Equal(t, int64(2), count)
	})
}

func TestFieldMissingOnAllRanks(t *testing.T) {
	onRanks(t, 2, func(c comm.Comm) {
		ds := lineDataset("other", mesh.AssocVertex, []float64{1}, c.Rank())
		_, err := FieldMax(c, ds, "f")
		assert.ErrorIs(t, err, mesh.ErrFieldMissing)
	})
}

func TestHistogramScenario(t *testing.T) {
	ds := lineDataset("f", mesh.AssocVertex, []float64{0, 0, 1, 1, 1, 2}, 0)

	h, err := FieldHistogram(comm.Serial{}, ds, "f", 0, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 1}, h.Bins)

	e, err := Entropy(h)
	require.NoError(t, err)
	want := -(2.0/6*math.Log(2.0/6) + 3.0/6*math.Log(3.0/6) + 1.0/6*math.Log(1.0/6))
	assert.InDelta(t, want, e, 1e-12)
}

func TestHistogramConservation(t *testing.T) {
	values := []float64{-0.5, 0, 0.2, 0.9, 1.3, 2.4, 2.999, 3, 7.5}
	ds := lineDataset("f", mesh.AssocVertex, values, 0)

	h, err := FieldHistogram(comm.Serial{}, ds, "f", 0, 3, 6)
	require.NoError(t, err)

	// Bin counts sum to exactly the number of in-range samples. Out of
	// range samples (-0.5, 3, 7.5) are dropped, never clamped.
	var total float64
	for _, b := range h.Bins {
		total += b
	}
	assert.Equal(t, 6.0, total)
}

func TestHistogramAcrossRanks(t *testing.T) {
	perRank := [][]float64{{0, 1}, {1, 2}}
	onRanks(t, 2, func(c comm.Comm) {
		ds := lineDataset("f", mesh.AssocVertex, perRank[c.Rank()], c.Rank())
		h, err := FieldHistogram(c, ds, "f", 0, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 1}, h.Bins)
	})
}

func TestHistogramRejectsBadParams(t *testing.T) {
	ds := lineDataset("f", mesh.AssocVertex, []float64{1}, 0)

	_, err := FieldHistogram(comm.Serial{}, ds, "f", 0, 3, 0)
	assert.ErrorIs(t, err, ErrNumericOutOfRange)

	_, err = FieldHistogram(comm.Serial{}, ds, "f", 3, 3, 4)
	assert.ErrorIs(t, err, ErrNumericOutOfRange)
}

func TestPdfCdfQuantile(t *testing.T) {
	h := &Histogram{Field: "f", Min: 0, Max: 4, Bins: []float64{1, 1, 1, 1}}

	pdf, err := Pdf(h)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, pdf.Bins)

	cdf, err := Cdf(h)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.5, 0.75, 1}, cdf.Bins, 1e-12)

	// q = 0.5 lands exactly on the second bin's cumulative probability.
	v, err := Quantile(cdf, 0.5, InterpLinear)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	// q = 0.6 straddles bins 1 and 2.
	lo, err := Quantile(cdf, 0.6, InterpLower)
	require.NoError(t, err)
	assert.Equal(t, 1.0, lo)

	hi, err := Quantile(cdf, 0.6, InterpHigher)
	require.NoError(t, err)
	assert.Equal(t, 2.0, hi)

	mid, err := Quantile(cdf, 0.6, InterpMidpoint)
	require.NoError(t, err)
	assert.Equal(t, 1.5, mid)

	near, err := Quantile(cdf, 0.6, InterpNearest)
	require.NoError(t, err)
	assert.Equal(t, 1.0, near)

	lin, err := Quantile(cdf, 0.6, InterpLinear)
	require.NoError(t, err)
	assert.InDelta(t, 1.4, lin, 1e-12)

	_, err = Quantile(cdf, 1.5, InterpLinear)
	assert.ErrorIs(t, err, ErrNumericOutOfRange)
}

func TestHomeIndexRowMajor(t *testing.T) {
	axes := []Axis{
		{Name: "a", Min: 0, Max: 2, Bins: 2},
		{Name: "b", Min: 0, Max: 3, Bins: 3},
	}

	// The last axis varies fastest: home = a_bin*3 + b_bin.
	assert.Equal(t, 0, HomeIndex(axes, []float64{0.5, 0.5}))
	assert.Equal(t, 2, HomeIndex(axes, []float64{0.5, 2.5}))
	assert.Equal(t, 3, HomeIndex(axes, []float64{1.5, 0.5}))
	assert.Equal(t, 5, HomeIndex(axes, []float64{1.5, 2.5}))

	// Any out-of-range axis drops the sample.
	assert.Equal(t, -1, HomeIndex(axes, []float64{2.5, 0.5}))
	assert.Equal(t, -1, HomeIndex(axes, []float64{0.5, -0.1}))
}

func TestBinningByCoordinate(t *testing.T) {
	// Element centers at x = 0.5, 1.5, 2.5, 3.5; two x-bins over [0, 4).
	ds := lineDataset("radial", mesh.AssocElement, []float64{1, 2, 3, 4}, 0)
	axes := []Axis{{Name: "x", Min: 0, Max: 4, Bins: 2}}

	b, err := FieldBinning(comm.Serial{}, ds, "radial", axes, BinSum)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 7}, b.Values)
	assert.Equal(t, []int64{2, 2}, b.Counts)

	b, err = FieldBinning(comm.Serial{}, ds, "radial", axes, BinAvg)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 3.5}, b.Values)

	b, err = FieldBinning(comm.Serial{}, ds, "radial", axes, BinMax)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, b.Values)

	b, err = FieldBinning(comm.Serial{}, ds, "radial", axes, BinPdf)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, b.Values)
}

func TestBinningByField(t *testing.T) {
	// Bin one field by another field's value.
	ds := lineDataset("radial", mesh.AssocElement, []float64{10, 20, 30}, 0)
	ds.Domains[0].Fields["bucket"] = &mesh.Field{
		Topology:    "mesh",
		Association: mesh.AssocElement,
		Values:      []float64{0, 1, 0},
	}
	require.NoError(t, mesh.Verify(ds))

	axes := []Axis{{Name: "bucket", Min: 0, Max: 2, Bins: 2}}
	b, err := FieldBinning(comm.Serial{}, ds, "radial", axes, BinSum)
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 20}, b.Values)
}

func TestBinningVarianceFamily(t *testing.T) {
	ds := lineDataset("f", mesh.AssocVertex, []float64{1, 3}, 0)
	axes := []Axis{{Name: "x", Min: 0, Max: 2, Bins: 1}}

	b, err := FieldBinning(comm.Serial{}, ds, "f", axes, BinVar)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, b.Values[0], 1e-12)

	b, err = FieldBinning(comm.Serial{}, ds, "f", axes, BinStd)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, b.Values[0], 1e-12)

	b, err = FieldBinning(comm.Serial{}, ds, "f", axes, BinRms)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5), b.Values[0], 1e-12)
}

func TestBinningAcrossRanks(t *testing.T) {
	perRank := [][]float64{{1, 2}, {3, 4}}
	onRanks(t, 2, func(c comm.Comm) {
		// Both ranks cover the same x range; samples accumulate per bin.
		ds := lineDataset("f", mesh.AssocElement, perRank[c.Rank()], c.Rank())
		axes := []Axis{{Name: "x", Min: 0, Max: 2, Bins: 2}}

		b, err := FieldBinning(c, ds, "f", axes, BinSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 6}, b.Values)
		assert.Equal(t, []int64{2, 2}, b.Counts)

		b, err = FieldBinning(c, ds, "f", axes, BinMin)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, b.Values)
	})
}

func TestBinningRejectsMixedAssociations(t *testing.T) {
	ds := lineDataset("f", mesh.AssocElement, []float64{1, 2}, 0)
	ds.Domains[0].Fields["verts"] = &mesh.Field{
		Topology:    "mesh",
		Association: mesh.AssocVertex,
		Values:      []float64{0, 1, 2},
	}

	axes := []Axis{{Name: "verts", Min: 0, Max: 3, Bins: 3}}
	_, err := FieldBinning(comm.Serial{}, ds, "f", axes, BinSum)
	assert.ErrorIs(t, err, mesh.ErrAssociationMismatch)
}

func TestPaintBinningRoundTrip(t *testing.T) {
	ds := lineDataset("radial", mesh.AssocElement, []float64{1, 2, 3, 4}, 0)
	axes := []Axis{{Name: "x", Min: 0, Max: 4, Bins: 2}}

	b, err := FieldBinning(comm.Serial{}, ds, "radial", axes, BinMax)
	require.NoError(t, err)
	require.NoError(t, PaintBinning(b, ds, "painted"))

	painted := ds.Domains[0].Fields["painted"]
	require.NotNil(t, painted)
	assert.Equal(t, mesh.AssocElement, painted.Association)

	// Every element reads the reduced value of its own bin.
	assert.Equal(t, []float64{2, 2, 4, 4}, painted.Values)

	// Binning the painted field with max reproduces the original binning.
	again, err := FieldBinning(comm.Serial{}, ds, "painted", axes, BinMax)
	require.NoError(t, err)
	assert.Equal(t, b.Values, again.Values)
}

func TestPaintBinningOutOfRangeGetsNaN(t *testing.T) {
	ds := lineDataset("radial", mesh.AssocElement, []float64{1, 2, 3}, 0)
	axes := []Axis{{Name: "x", Min: 0, Max: 2, Bins: 2}}

	b, err := FieldBinning(comm.Serial{}, ds, "radial", axes, BinSum)
	require.NoError(t, err)
	require.NoError(t, PaintBinning(b, ds, "painted"))

	painted := ds.Domains[0].Fields["painted"].Values
	assert.Equal(t, 1.0, painted[0])
	assert.Equal(t, 2.0, painted[1])
	assert.True(t, math.IsNaN(painted[2]))
}
