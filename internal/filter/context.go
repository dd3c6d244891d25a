package filter

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/comm"
	"github.com/insituflow/flume/internal/registry"
)

// Context is the execution-time view a filter gets of itself: its merged
// parameters, the boxes bound to its input ports, and a slot for the one
// output it may produce. The scheduler creates one per invocation and clears
// the bindings after the filter's turn; a filter that retains an input box
// past Execute is incorrect.
type Context struct {
	name     string
	typeName string
	ports    []string
	params   cty.Value
	inputs   map[string]*box.Box
	output   *box.Box
	registry *registry.Registry
	comm     comm.Comm
}

// NewContext builds the execution context for one filter invocation.
func NewContext(inst *Instance, reg *registry.Registry, c comm.Comm) *Context {
	return &Context{
		name:     inst.Name,
		typeName: inst.TypeName,
		ports:    inst.Interface.PortNames,
		params:   inst.Params,
		inputs:   make(map[string]*box.Box, len(inst.Interface.PortNames)),
		registry: reg,
		comm:     c,
	}
}

// Name returns the instance name.
func (fc *Context) Name() string { return fc.name }

// TypeName returns the filter type name.
func (fc *Context) TypeName() string { return fc.typeName }

// Detail returns the diagnostic name, "instance(type)".
func (fc *Context) Detail() string {
	return fmt.Sprintf("%s(%s)", fc.name, fc.typeName)
}

// Params returns the merged parameter object.
func (fc *Context) Params() cty.Value { return fc.params }

// Param returns one top-level parameter attribute, or NilVal if absent.
func (fc *Context) Param(name string) cty.Value {
	if fc.params == cty.NilVal || !fc.params.Type().IsObjectType() {
		return cty.NilVal
	}
	if !fc.params.Type().HasAttribute(name) {
		return cty.NilVal
	}
	v := fc.params.GetAttr(name)
	if v.IsNull() {
		return cty.NilVal
	}
	return v
}

// Input returns the box bound to the named port.
func (fc *Context) Input(port string) (*box.Box, error) {
	b, ok := fc.inputs[port]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no bound input %q", ErrPortNotFound, fc.Detail(), port)
	}
	return b, nil
}

// InputAt returns the box bound to the i-th declared port.
func (fc *Context) InputAt(i int) (*box.Box, error) {
	if i < 0 || i >= len(fc.ports) {
		return nil, fmt.Errorf("%w: %s has no port index %d", ErrPortNotFound, fc.Detail(), i)
	}
	return fc.Input(fc.ports[i])
}

// InputAs fetches the named input and unboxes it under tag T.
func InputAs[T any](fc *Context, port string) (T, error) {
	var zero T
	b, err := fc.Input(port)
	if err != nil {
		return zero, err
	}
	v, err := box.Get[T](b)
	if err != nil {
		return zero, fmt.Errorf("%s input %q: %w", fc.Detail(), port, err)
	}
	return v, nil
}

// SetOutput stores the filter's output box.
func (fc *Context) SetOutput(b *box.Box) { fc.output = b }

// SetOwnedOutput wraps v in an owned box and stores it.
func SetOwnedOutput[T any](fc *Context, v T) {
	fc.output = box.Owned(v, nil)
}

// Output returns the output box, or nil if the filter produced none.
func (fc *Context) Output() *box.Box { return fc.output }

// Registry exposes the workspace registry. Filters use it only to read
// well-known pinned entries such as the published dataset; the scheduler
// owns all other traffic.
func (fc *Context) Registry() *registry.Registry { return fc.registry }

// Comm returns the workspace communicator.
func (fc *Context) Comm() comm.Comm { return fc.comm }

// BindInput attaches a fetched box to a declared port. Scheduler use only.
func (fc *Context) BindInput(port string, b *box.Box) error {
	found := false
	for _, p := range fc.ports {
		if p == port {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s declares no port %q", ErrPortNotFound, fc.Detail(), port)
	}
	fc.inputs[port] = b
	return nil
}

// ClearBindings drops all input and output references so the context holds
// nothing past its turn.
func (fc *Context) ClearBindings() {
	fc.inputs = make(map[string]*box.Box)
	fc.output = nil
}
