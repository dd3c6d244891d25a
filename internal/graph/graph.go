// Package graph holds the DAG of filter instances a workspace executes:
// named filters plus directed edges from producers to consumer ports. All
// validation that can happen at construction time happens here, so the
// scheduler only ever sees well-formed graphs.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/filter"
)

// Construction-time error kinds.
var (
	ErrUnknownFilterType = fmt.Errorf("unknown filter type")
	ErrDuplicateName     = fmt.Errorf("duplicate filter name")
	ErrInvalidParams     = fmt.Errorf("invalid filter params")
	ErrFilterNotFound    = fmt.Errorf("filter not found")
	ErrNoOutputPort      = fmt.Errorf("filter declares no output")
	ErrDisconnectedPort  = fmt.Errorf("disconnected port")
	ErrCycleDetected     = fmt.Errorf("cycle detected")
)

// inEdge is the producer bound to one consumer port. A port exists from the
// moment its filter is added; set distinguishes "never connected" from
// "explicitly left empty".
type inEdge struct {
	producer string
	set      bool
}

// Graph owns filter instances and the edges between them. edges in and out
// are kept symmetric by every mutator.
type Graph struct {
	types    *filter.Table
	filters  map[string]*filter.Instance
	edgesIn  map[string]map[string]inEdge // consumer -> port -> producer
	edgesOut map[string][]string          // producer -> consumers, duplicates kept, connect order
	autoID   int
}

// New creates an empty graph resolving filter types against the given table.
func New(types *filter.Table) *Graph {
	return &Graph{
		types:    types,
		filters:  make(map[string]*filter.Instance),
		edgesIn:  make(map[string]map[string]inEdge),
		edgesOut: make(map[string][]string),
	}
}

// AddFilter instantiates a filter type. An empty name auto-generates one.
// Params are merged over the type's declared defaults and verified; a
// failing verify (or any appended diagnostic, regardless of the returned
// bool) aborts the add and leaves the graph untouched.
func (g *Graph) AddFilter(typeName, name string, params cty.Value) (*filter.Instance, error) {
	reg, iface, ok := g.types.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilterType, typeName)
	}
	if name == "" {
		name = fmt.Sprintf("f_%d", g.autoID)
		g.autoID++
	}
	if _, exists := g.filters[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	merged := filter.MergeParams(iface.DefaultParams, params)
	info := &filter.Info{}
	ok = reg.VerifyParams(merged, info)
	// Some filters report success while still appending diagnostics; a
	// non-empty error list always fails.
	if !ok || len(info.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s(%s): %s",
			ErrInvalidParams, name, typeName, strings.Join(info.Errors, "; "))
	}

	inst := &filter.Instance{
		Name:      name,
		TypeName:  typeName,
		Interface: iface,
		Params:    merged,
	}
	g.filters[name] = inst

	ports := make(map[string]inEdge, len(iface.PortNames))
	for _, p := range iface.PortNames {
		ports[p] = inEdge{}
	}
	g.edgesIn[name] = ports
	return inst, nil
}

// Has reports whether a filter instance exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.filters[name]
	return ok
}

// Filter returns a filter instance by name.
func (g *Graph) Filter(name string) (*filter.Instance, error) {
	inst, ok := g.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFilterNotFound, name)
	}
	return inst, nil
}

// Connect wires src's output to the named port of dst. Reconnecting a port
// replaces the previous edge symmetrically. The order of surviving connect
// calls is preserved in the out-edge list.
func (g *Graph) Connect(src, dst, port string) error {
	producer, ok := g.filters[src]
	if !ok {
		return fmt.Errorf("%w: source %q", ErrFilterNotFound, src)
	}
	if !producer.Interface.OutputPort {
		return fmt.Errorf("%w: %s cannot feed %s:%s", ErrNoOutputPort, producer.Detail(), dst, port)
	}
	consumer, ok := g.filters[dst]
	if !ok {
		return fmt.Errorf("%w: destination %q", ErrFilterNotFound, dst)
	}
	ports := g.edgesIn[dst]
	prev, ok := ports[port]
	if !ok {
		return fmt.Errorf("%w: %s has no port %q", filter.ErrPortNotFound, consumer.Detail(), port)
	}

	if prev.set && prev.producer != "" {
		g.dropOutEdge(prev.producer, dst)
	}
	ports[port] = inEdge{producer: src, set: true}
	g.edgesOut[src] = append(g.edgesOut[src], dst)
	return nil
}

// ConnectAt wires src to dst's i-th declared port.
func (g *Graph) ConnectAt(src, dst string, portIndex int) error {
	consumer, ok := g.filters[dst]
	if !ok {
		return fmt.Errorf("%w: destination %q", ErrFilterNotFound, dst)
	}
	names := consumer.Interface.PortNames
	if portIndex < 0 || portIndex >= len(names) {
		return fmt.Errorf("%w: %s has no port index %d", filter.ErrPortNotFound, consumer.Detail(), portIndex)
	}
	return g.Connect(src, dst, names[portIndex])
}

// MarkEmpty records that a port is deliberately left unconnected, which
// satisfies the pre-execution connectivity check.
func (g *Graph) MarkEmpty(dst, port string) error {
	consumer, ok := g.filters[dst]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFilterNotFound, dst)
	}
	ports := g.edgesIn[dst]
	prev, ok := ports[port]
	if !ok {
		return fmt.Errorf("%w: %s has no port %q", filter.ErrPortNotFound, consumer.Detail(), port)
	}
	if prev.set && prev.producer != "" {
		g.dropOutEdge(prev.producer, dst)
	}
	ports[port] = inEdge{set: true}
	return nil
}

// RemoveFilter deletes an instance and prunes every edge that references it
// in either direction.
func (g *Graph) RemoveFilter(name string) error {
	if _, ok := g.filters[name]; !ok {
		return fmt.Errorf("%w: %q", ErrFilterNotFound, name)
	}
	// Unhook from producers feeding this filter.
	for _, e := range g.edgesIn[name] {
		if e.set && e.producer != "" {
			g.dropOutEdge(e.producer, name)
		}
	}
	// Unhook consumers fed by this filter.
	for _, ports := range g.edgesIn {
		for port, e := range ports {
			if e.producer == name {
				ports[port] = inEdge{}
			}
		}
	}
	delete(g.edgesOut, name)
	delete(g.edgesIn, name)
	delete(g.filters, name)
	return nil
}

// Reset destroys all filters and clears every table.
func (g *Graph) Reset() {
	g.filters = make(map[string]*filter.Instance)
	g.edgesIn = make(map[string]map[string]inEdge)
	g.edgesOut = make(map[string][]string)
	g.autoID = 0
}

// Names returns all instance names in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.filters))
	for name := range g.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InEdges returns port -> producer for all connected ports of a consumer.
// Deliberately empty ports are omitted.
func (g *Graph) InEdges(name string) map[string]string {
	out := make(map[string]string)
	for port, e := range g.edgesIn[name] {
		if e.set && e.producer != "" {
			out[port] = e.producer
		}
	}
	return out
}

// ConsumerCount returns how many (filter, port) pairs consume a producer's
// output. A consumer reading the same producer through two ports counts
// twice.
func (g *Graph) ConsumerCount(name string) int {
	return len(g.edgesOut[name])
}

// Validate checks that every port of every filter is either connected or
// explicitly marked empty.
func (g *Graph) Validate() error {
	for _, name := range g.Names() {
		for _, port := range g.filters[name].Interface.PortNames {
			if !g.edgesIn[name][port].set {
				return fmt.Errorf("%w: %s:%s has no producer and is not marked empty",
					ErrDisconnectedPort, g.filters[name].Detail(), port)
			}
		}
	}
	return nil
}

// TopoSort orders the filters with Kahn's algorithm, breaking ties
// alphabetically by instance name so every rank of a parallel job walks the
// graph identically.
func (g *Graph) TopoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.filters))
	for name := range g.filters {
		indeg[name] = 0
	}
	for name, ports := range g.edgesIn {
		for _, e := range ports {
			if e.set && e.producer != "" {
				indeg[name]++
			}
		}
	}

	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.filters))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		released := false
		for _, dst := range g.edgesOut[name] {
			indeg[dst]--
			if indeg[dst] == 0 {
				ready = append(ready, dst)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.filters) {
		var stuck []string
		for name, d := range indeg {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %s", ErrCycleDetected, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Info returns a deterministic one-line-per-filter listing of the graph for
// diagnostics and logs.
func (g *Graph) Info() string {
	var b strings.Builder
	for _, name := range g.Names() {
		inst := g.filters[name]
		fmt.Fprintf(&b, "%s type=%s", name, inst.TypeName)
		for _, port := range inst.Interface.PortNames {
			e := g.edgesIn[name][port]
			switch {
			case e.set && e.producer != "":
				fmt.Fprintf(&b, " %s<-%s", port, e.producer)
			case e.set:
				fmt.Fprintf(&b, " %s<-(empty)", port)
			default:
				fmt.Fprintf(&b, " %s<-(unset)", port)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// dropOutEdge removes one occurrence of dst from src's out-edge list.
func (g *Graph) dropOutEdge(src, dst string) {
	outs := g.edgesOut[src]
	for i, d := range outs {
		if d == dst {
			g.edgesOut[src] = append(outs[:i], outs[i+1:]...)
			return
		}
	}
}
