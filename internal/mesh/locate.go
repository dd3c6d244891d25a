package mesh

import "fmt"

// Spatial lookup of vertices and element centers, used by the reductions to
// report where an extremum lives. Index decoding is row-major with x
// varying fastest, matching the blueprint layout.

// unravel decodes a flat index into per-axis indices for the given dims.
func unravel(index int, dims [3]int) [3]int {
	var out [3]int
	out[0] = index % dims[0]
	out[1] = (index / dims[0]) % dims[1]
	out[2] = index / (dims[0] * dims[1])
	return out
}

// axisValue returns ticks[i], or 0 for an absent axis.
func axisValue(ticks []float64, i int) float64 {
	if len(ticks) == 0 {
		return 0
	}
	return ticks[i]
}

// VertLocation returns the spatial position of vertex index on the named
// topology.
func (dom *Domain) VertLocation(topoName string, index int) ([3]float64, error) {
	topo, ok := dom.Topologies[topoName]
	if !ok {
		return [3]float64{}, fmt.Errorf("%w: topology %q", ErrInvalidMesh, topoName)
	}
	coords, ok := dom.Coordsets[topo.Coordset]
	if !ok {
		return [3]float64{}, fmt.Errorf("%w: coordset %q", ErrInvalidMesh, topo.Coordset)
	}
	return coords.vertLocation(index)
}

func (c *Coordset) vertLocation(index int) ([3]float64, error) {
	if index < 0 || index >= c.NumVerts() {
		return [3]float64{}, fmt.Errorf("%w: vertex index %d out of range", ErrInvalidMesh, index)
	}
	switch c.Type {
	case CoordsUniform:
		ijk := unravel(index, c.vertDims())
		return [3]float64{
			c.Origin[0] + c.Spacing[0]*float64(ijk[0]),
			c.Origin[1] + c.Spacing[1]*float64(ijk[1]),
			c.Origin[2] + c.Spacing[2]*float64(ijk[2]),
		}, nil
	case CoordsRectilinear:
		ijk := unravel(index, c.vertDims())
		return [3]float64{
			axisValue(c.X, ijk[0]),
			axisValue(c.Y, ijk[1]),
			axisValue(c.Z, ijk[2]),
		}, nil
	case CoordsExplicit:
		return [3]float64{
			axisValue(c.X, index),
			axisValue(c.Y, index),
			axisValue(c.Z, index),
		}, nil
	}
	return [3]float64{}, fmt.Errorf("%w: coordset type %q", ErrInvalidMesh, c.Type)
}

// ElementLocation returns the center of element index on the named
// topology: the cell center for grid topologies, the vertex mean for
// unstructured ones.
func (dom *Domain) ElementLocation(topoName string, index int) ([3]float64, error) {
	topo, ok := dom.Topologies[topoName]
	if !ok {
		return [3]float64{}, fmt.Errorf("%w: topology %q", ErrInvalidMesh, topoName)
	}
	coords, ok := dom.Coordsets[topo.Coordset]
	if !ok {
		return [3]float64{}, fmt.Errorf("%w: coordset %q", ErrInvalidMesh, topo.Coordset)
	}

	if topo.Type == TopoUnstructured {
		size, ok := shapeSizes[topo.Shape]
		if !ok {
			return [3]float64{}, fmt.Errorf("%w: unknown shape %q", ErrInvalidMesh, topo.Shape)
		}
		start := index * size
		if start < 0 || start+size > len(topo.Connectivity) {
			return [3]float64{}, fmt.Errorf("%w: element index %d out of range", ErrInvalidMesh, index)
		}
		var center [3]float64
		for _, v := range topo.Connectivity[start : start+size] {
			p, err := coords.vertLocation(v)
			if err != nil {
				return [3]float64{}, err
			}
			for a := 0; a < 3; a++ {
				center[a] += p[a]
			}
		}
		for a := 0; a < 3; a++ {
			center[a] /= float64(size)
		}
		return center, nil
	}

	vd := coords.vertDims()
	cd := cellDims(vd)
	n := cd[0] * cd[1] * cd[2]
	if index < 0 || index >= n {
		return [3]float64{}, fmt.Errorf("%w: element index %d out of range", ErrInvalidMesh, index)
	}
	ijk := unravel(index, cd)

	switch c := coords; c.Type {
	case CoordsUniform:
		var center [3]float64
		for a := 0; a < 3; a++ {
			half := 0.0
			if vd[a] > 1 {
				half = 0.5
			}
			center[a] = c.Origin[a] + c.Spacing[a]*(float64(ijk[a])+half)
		}
		return center, nil
	case CoordsRectilinear:
		mid := func(ticks []float64, i, nverts int) float64 {
			if len(ticks) == 0 {
				return 0
			}
			if nverts > 1 {
				return (ticks[i] + ticks[i+1]) / 2
			}
			return ticks[i]
		}
		return [3]float64{
			mid(c.X, ijk[0], vd[0]),
			mid(c.Y, ijk[1], vd[1]),
			mid(c.Z, ijk[2], vd[2]),
		}, nil
	}
	return [3]float64{}, fmt.Errorf("%w: cannot locate elements on coordset type %q", ErrInvalidMesh, coords.Type)
}

// EntityLocation dispatches on association: vertex position or element
// center.
func (dom *Domain) EntityLocation(topoName string, assoc Association, index int) ([3]float64, error) {
	switch assoc {
	case AssocVertex:
		return dom.VertLocation(topoName, index)
	case AssocElement:
		return dom.ElementLocation(topoName, index)
	}
	return [3]float64{}, fmt.Errorf("%w: %q", ErrAssociationMismatch, assoc)
}
