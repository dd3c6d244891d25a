// Package workspace owns one graph, one data registry and one filter-type
// table, and executes the graph to completion exactly once per invocation.
//
// Scheduling is single-threaded cooperative: filters run sequentially on
// the calling goroutine in topological order with an alphabetical
// tie-break, so every rank of a parallel job performs the same collective
// calls in the same order. Filters may parallelize internally; the
// scheduler never dispatches siblings concurrently.
package workspace

import (
	"context"
	"fmt"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/graph"
	"github.com/insituflow/flume/internal/registry"
)

// ErrNoOutput is returned when a filter that declares an output finishes
// without producing one.
var ErrNoOutput = fmt.Errorf("filter produced no output")

// Module is a named bundle of filter types that registers itself on a
// workspace.
type Module interface {
	Register(ctx context.Context, w *Workspace) error
}

// Workspace is the executor: filter-type table, graph, registry,
// communicator.
type Workspace struct {
	types *filter.Table
	graph *graph.Graph
	reg   *registry.Registry
	comm  comm.Comm

	lastOrder []string
}

// New creates a workspace on the process-default communicator.
func New() *Workspace {
	return NewWithComm(comm.Default())
}

// NewWithComm creates a workspace bound to an explicit communicator.
func NewWithComm(c comm.Comm) *Workspace {
	types := filter.NewTable()
	return &Workspace{
		types: types,
		graph: graph.New(types),
		reg:   registry.New(),
		comm:  c,
	}
}

// Graph returns the owned graph.
func (w *Workspace) Graph() *graph.Graph { return w.graph }

// Registry returns the owned data registry.
func (w *Workspace) Registry() *registry.Registry { return w.reg }

// Comm returns the workspace communicator.
func (w *Workspace) Comm() comm.Comm { return w.comm }

// RegisterType adds a filter type to this workspace's table.
func (w *Workspace) RegisterType(ctx context.Context, r *filter.Registered) error {
	return w.types.Register(ctx, r)
}

// Publish pins external data into the registry under a well-known key. The
// entry survives every fetch and is only dropped by Reset.
func (w *Workspace) Publish(key string, b *box.Box) error {
	return w.reg.Add(key, b, registry.Pinned)
}

// ExecuteOrder returns the instance names of the last Execute in the order
// they ran.
func (w *Workspace) ExecuteOrder() []string { return w.lastOrder }

// Execute runs the whole graph once: validate, order, count consumers, then
// fetch-execute-store each filter, releasing every intermediate the moment
// its last consumer has read it. Any filter error unwinds, releasing all
// registry entries in reverse insertion order before the error is returned.
func (w *Workspace) Execute(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	w.lastOrder = nil

	if err := w.graph.Validate(); err != nil {
		return err
	}
	order, err := w.graph.TopoSort()
	if err != nil {
		return err
	}
	logger.Debug("Graph ordered.", "filters", len(order))

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			w.reg.Reset()
			return fmt.Errorf("execution canceled before %q: %w", name, err)
		}
		if err := w.executeOne(ctx, name); err != nil {
			w.reg.Reset()
			return err
		}
		w.lastOrder = append(w.lastOrder, name)
		w.reg.Sweep()
	}

	for _, key := range w.reg.Orphans() {
		logger.Info("Registry entry was never consumed.", "key", key)
	}
	return nil
}

// executeOne binds inputs, invokes the filter, and stores its output with a
// read budget equal to its consumer count.
func (w *Workspace) executeOne(ctx context.Context, name string) error {
	logger := ctxlog.FromContext(ctx)
	inst, err := w.graph.Filter(name)
	if err != nil {
		return err
	}
	reg, _, ok := w.types.Lookup(inst.TypeName)
	if !ok {
		return fmt.Errorf("%w: %q", graph.ErrUnknownFilterType, inst.TypeName)
	}

	fc := filter.NewContext(inst, w.reg, w.comm)
	defer fc.ClearBindings()

	for port, producer := range w.graph.InEdges(name) {
		b, err := w.reg.Fetch(producer)
		if err != nil {
			return fmt.Errorf("%s input %q: %w", inst.Detail(), port, err)
		}
		if err := fc.BindInput(port, b); err != nil {
			return err
		}
	}

	logger.Debug("Executing filter.", "filter", inst.Detail())
	if err := reg.Execute(ctx, fc); err != nil {
		return fmt.Errorf("%s: %w", inst.Detail(), err)
	}

	out := fc.Output()
	if !inst.Interface.OutputPort {
		if out != nil {
			logger.Warn("Filter set an output but declares none; dropping it.",
				"filter", inst.Detail())
			out.Release()
		}
		return nil
	}
	if out == nil {
		return fmt.Errorf("%w: %s", ErrNoOutput, inst.Detail())
	}

	consumers := w.graph.ConsumerCount(name)
	if consumers == 0 {
		// Nobody downstream; keep the result as a drained entry so callers
		// (the expression evaluator) can pull results by name. One read.
		return w.reg.Add(name, out, 1)
	}
	return w.reg.Add(name, out, consumers)
}

// Reset destroys the graph and releases every registry entry, returning the
// workspace to its freshly constructed state. Registered filter types are
// kept.
func (w *Workspace) Reset() {
	w.graph.Reset()
	w.reg.Reset()
	w.lastOrder = nil
}
