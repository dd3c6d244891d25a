package mesh

import "math"

// Example builds a small synthetic dataset: one uniform grid per domain on
// the unit cube, a sinusoidal vertex field "braid" and an element field
// "radial" measuring distance from the cube center. Handy for demos and
// tests that need a blueprint-conforming mesh without a simulation.
func Example(domains, pointsPerSide int) *Dataset {
	ds := &Dataset{}
	n := pointsPerSide
	spacing := 1.0 / float64(n-1)

	for d := 0; d < domains; d++ {
		coords := &Coordset{
			Type:    CoordsUniform,
			Dims:    [3]int{n, n, n},
			Origin:  [3]float64{float64(d), 0, 0},
			Spacing: [3]float64{spacing, spacing, spacing},
		}
		dom := &Domain{
			Coordsets:  map[string]*Coordset{"coords": coords},
			Topologies: map[string]*Topology{"mesh": {Type: TopoUniform, Coordset: "coords"}},
			Fields:     map[string]*Field{},
			State:      State{Cycle: 100, Time: 1.0, DomainID: d},
		}

		nverts := coords.NumVerts()
		braid := make([]float64, nverts)
		for i := 0; i < nverts; i++ {
			p, _ := coords.vertLocation(i)
			braid[i] = math.Sin(2*math.Pi*p[0]) + math.Cos(2*math.Pi*p[1]) + p[2]
		}
		dom.Fields["braid"] = &Field{
			Topology:    "mesh",
			Association: AssocVertex,
			Values:      braid,
		}

		cd := cellDims(coords.vertDims())
		nelems := cd[0] * cd[1] * cd[2]
		radial := make([]float64, nelems)
		center := [3]float64{
			coords.Origin[0] + 0.5, coords.Origin[1] + 0.5, coords.Origin[2] + 0.5,
		}
		for i := 0; i < nelems; i++ {
			p, _ := dom.ElementLocation("mesh", i)
			dx, dy, dz := p[0]-center[0], p[1]-center[1], p[2]-center[2]
			radial[i] = math.Sqrt(dx*dx + dy*dy + dz*dz)
		}
		dom.Fields["radial"] = &Field{
			Topology:    "mesh",
			Association: AssocElement,
			Values:      radial,
		}

		ds.Domains = append(ds.Domains, dom)
	}
	return ds
}
