// Package mesh models the published scientific dataset: a set of domains,
// each carrying coordsets, topologies and fields conforming to the mesh
// blueprint schema. The reduction layer consumes this model; nothing in the
// core mutates it.
package mesh

import (
	"fmt"
)

// Error kinds raised by dataset checks.
var (
	ErrFieldMissing        = fmt.Errorf("field missing")
	ErrAssociationMismatch = fmt.Errorf("association mismatch")
	ErrEmptyDomain         = fmt.Errorf("empty domain")
	ErrInvalidMesh         = fmt.Errorf("invalid mesh")
)

// Association says whether field values live on vertices or elements.
type Association string

const (
	AssocVertex  Association = "vertex"
	AssocElement Association = "element"
)

// Coordset kinds.
const (
	CoordsUniform     = "uniform"
	CoordsRectilinear = "rectilinear"
	CoordsExplicit    = "explicit"
)

// Topology kinds.
const (
	TopoUniform      = "uniform"
	TopoRectilinear  = "rectilinear"
	TopoStructured   = "structured"
	TopoUnstructured = "unstructured"
)

// Coordset describes the coordinates of one domain. Uniform grids use
// Dims/Origin/Spacing; rectilinear grids use X/Y/Z as axis tick values;
// explicit coordsets use X/Y/Z as per-vertex components. A zero-length Z
// makes the coordset two-dimensional.
type Coordset struct {
	Type    string     `json:"type" yaml:"type"`
	Dims    [3]int     `json:"dims,omitempty" yaml:"dims,omitempty"`
	Origin  [3]float64 `json:"origin,omitempty" yaml:"origin,omitempty"`
	Spacing [3]float64 `json:"spacing,omitempty" yaml:"spacing,omitempty"`
	X       []float64  `json:"x,omitempty" yaml:"x,omitempty"`
	Y       []float64  `json:"y,omitempty" yaml:"y,omitempty"`
	Z       []float64  `json:"z,omitempty" yaml:"z,omitempty"`
}

// Topology names a coordset and, for unstructured meshes, the element
// shape and connectivity.
type Topology struct {
	Type         string `json:"type" yaml:"type"`
	Coordset     string `json:"coordset" yaml:"coordset"`
	Shape        string `json:"shape,omitempty" yaml:"shape,omitempty"`
	Connectivity []int  `json:"connectivity,omitempty" yaml:"connectivity,omitempty"`
	ElemDims     [3]int `json:"elem_dims,omitempty" yaml:"elem_dims,omitempty"`
}

// Field is a scalar field bound to a topology with a vertex or element
// association.
type Field struct {
	Topology    string      `json:"topology" yaml:"topology"`
	Association Association `json:"association" yaml:"association"`
	Values      []float64   `json:"values" yaml:"values"`
}

// State carries the simulation state of one domain.
type State struct {
	Cycle    int64   `json:"cycle" yaml:"cycle"`
	Time     float64 `json:"time" yaml:"time"`
	DomainID int     `json:"domain_id" yaml:"domain_id"`
}

// Domain is one rank-local piece of the published mesh.
type Domain struct {
	Coordsets  map[string]*Coordset `json:"coordsets" yaml:"coordsets"`
	Topologies map[string]*Topology `json:"topologies" yaml:"topologies"`
	Fields     map[string]*Field    `json:"fields" yaml:"fields"`
	State      State                `json:"state" yaml:"state"`
}

// Dataset is the multi-domain tree a simulation publishes each cycle.
type Dataset struct {
	Domains []*Domain `json:"domains" yaml:"domains"`
}

// shapeSizes maps unstructured element shapes to their vertex counts.
var shapeSizes = map[string]int{
	"point": 1,
	"line":  2,
	"tri":   3,
	"quad":  4,
	"tet":   4,
	"hex":   8,
}

// HasField reports whether any domain carries the named field.
func (d *Dataset) HasField(name string) bool {
	for _, dom := range d.Domains {
		if _, ok := dom.Fields[name]; ok {
			return true
		}
	}
	return false
}

// FieldNames returns the union of field names across domains, unordered.
func (d *Dataset) FieldNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, dom := range d.Domains {
		for name := range dom.Fields {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}

// Cycle returns the cycle of the first domain carrying state.
func (d *Dataset) Cycle() int64 {
	if len(d.Domains) == 0 {
		return 0
	}
	return d.Domains[0].State.Cycle
}

// axisLen treats a zero-length axis as a single layer.
func axisLen(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// NumVerts returns the vertex count of the coordset.
func (c *Coordset) NumVerts() int {
	switch c.Type {
	case CoordsUniform:
		return axisLen(c.Dims[0]) * axisLen(c.Dims[1]) * axisLen(c.Dims[2])
	case CoordsRectilinear:
		return axisLen(len(c.X)) * axisLen(len(c.Y)) * axisLen(len(c.Z))
	case CoordsExplicit:
		return len(c.X)
	}
	return 0
}

// vertDims returns the per-axis vertex counts of a grid coordset.
func (c *Coordset) vertDims() [3]int {
	switch c.Type {
	case CoordsUniform:
		return [3]int{axisLen(c.Dims[0]), axisLen(c.Dims[1]), axisLen(c.Dims[2])}
	case CoordsRectilinear:
		return [3]int{axisLen(len(c.X)), axisLen(len(c.Y)), axisLen(len(c.Z))}
	}
	return [3]int{}
}

// cellDims returns per-axis cell counts (vertex counts minus one, floored
// at one so flat axes contribute a single layer).
func cellDims(vd [3]int) [3]int {
	out := [3]int{}
	for i, n := range vd {
		if n > 1 {
			out[i] = n - 1
		} else {
			out[i] = 1
		}
	}
	return out
}

// NumElements returns the element count of the topology within dom.
func (dom *Domain) NumElements(topoName string) (int, error) {
	topo, ok := dom.Topologies[topoName]
	if !ok {
		return 0, fmt.Errorf("%w: topology %q", ErrInvalidMesh, topoName)
	}
	if topo.Type == TopoUnstructured {
		size, ok := shapeSizes[topo.Shape]
		if !ok {
			return 0, fmt.Errorf("%w: unknown shape %q", ErrInvalidMesh, topo.Shape)
		}
		return len(topo.Connectivity) / size, nil
	}
	coords, ok := dom.Coordsets[topo.Coordset]
	if !ok {
		return 0, fmt.Errorf("%w: coordset %q", ErrInvalidMesh, topo.Coordset)
	}
	cd := cellDims(coords.vertDims())
	return cd[0] * cd[1] * cd[2], nil
}

// NumVerts returns the vertex count of the topology within dom.
func (dom *Domain) NumVerts(topoName string) (int, error) {
	topo, ok := dom.Topologies[topoName]
	if !ok {
		return 0, fmt.Errorf("%w: topology %q", ErrInvalidMesh, topoName)
	}
	coords, ok := dom.Coordsets[topo.Coordset]
	if !ok {
		return 0, fmt.Errorf("%w: coordset %q", ErrInvalidMesh, topo.Coordset)
	}
	return coords.NumVerts(), nil
}

// Verify checks blueprint conformance: references resolve, associations are
// valid, and field value counts match their association's entity count.
func Verify(d *Dataset) error {
	if len(d.Domains) == 0 {
		return fmt.Errorf("%w: dataset has no domains", ErrEmptyDomain)
	}
	for di, dom := range d.Domains {
		for name, topo := range dom.Topologies {
			if _, ok := dom.Coordsets[topo.Coordset]; !ok {
				return fmt.Errorf("%w: domain %d topology %q references missing coordset %q",
					ErrInvalidMesh, di, name, topo.Coordset)
			}
			if topo.Type == TopoUnstructured {
				size, ok := shapeSizes[topo.Shape]
				if !ok {
					return fmt.Errorf("%w: domain %d topology %q has unknown shape %q",
						ErrInvalidMesh, di, name, topo.Shape)
				}
				if len(topo.Connectivity)%size != 0 {
					return fmt.Errorf("%w: domain %d topology %q connectivity not a multiple of %d",
						ErrInvalidMesh, di, name, size)
				}
			}
		}
		for name, f := range dom.Fields {
			if _, ok := dom.Topologies[f.Topology]; !ok {
				return fmt.Errorf("%w: domain %d field %q references missing topology %q",
					ErrInvalidMesh, di, name, f.Topology)
			}
			var want int
			var err error
			switch f.Association {
			case AssocVertex:
				want, err = dom.NumVerts(f.Topology)
			case AssocElement:
				want, err = dom.NumElements(f.Topology)
			default:
				return fmt.Errorf("%w: domain %d field %q has association %q",
					ErrAssociationMismatch, di, name, f.Association)
			}
			if err != nil {
				return err
			}
			if len(f.Values) != want {
				return fmt.Errorf("%w: domain %d field %q has %d values, %s association needs %d",
					ErrInvalidMesh, di, name, len(f.Values), f.Association, want)
			}
		}
	}
	return nil
}
