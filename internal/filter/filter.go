// Package filter defines the contract every unit of computation honors: a
// declared interface (type name, input ports, optional output, default
// parameters), a pure parameter check, and an execute hook. Filter types are
// registered as a capability set of plain functions, the only extension
// point the core offers.
package filter

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Error kinds raised at registration and execution time.
var (
	ErrInvalidInterface = fmt.Errorf("invalid filter interface")
	ErrPortNotFound     = fmt.Errorf("port not found")
)

// Interface is the static descriptor a filter type declares about itself.
type Interface struct {
	// TypeName uniquely identifies the filter type within a workspace.
	TypeName string
	// PortNames lists the input ports in declaration order. May be empty.
	PortNames []string
	// OutputPort reports whether the filter produces an output.
	OutputPort bool
	// DefaultParams seeds the parameters of each instance. cty.NilVal or an
	// object value.
	DefaultParams cty.Value
}

// Info accumulates human-readable diagnostics from a parameter check. A
// non-empty error list fails the check regardless of what VerifyParams
// returned.
type Info struct {
	Errors []string
}

// AddError appends a diagnostic line.
func (i *Info) AddError(format string, args ...any) {
	i.Errors = append(i.Errors, fmt.Sprintf(format, args...))
}

// Registered is the capability set a filter type supplies: declare the
// interface, verify merged parameters, execute. All three are required.
type Registered struct {
	Declare      func() Interface
	VerifyParams func(params cty.Value, info *Info) bool
	Execute      func(ctx context.Context, fc *Context) error
}

// VerifyInterface is the static sanity check run when a type is first
// registered.
func VerifyInterface(i Interface) error {
	if i.TypeName == "" {
		return fmt.Errorf("%w: empty type_name", ErrInvalidInterface)
	}
	seen := make(map[string]struct{}, len(i.PortNames))
	for _, p := range i.PortNames {
		if p == "" {
			return fmt.Errorf("%w: %q declares an empty port name", ErrInvalidInterface, i.TypeName)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %q declares duplicate port %q", ErrInvalidInterface, i.TypeName, p)
		}
		seen[p] = struct{}{}
	}
	if i.DefaultParams != cty.NilVal && !i.DefaultParams.Type().IsObjectType() {
		return fmt.Errorf("%w: %q default params must be an object", ErrInvalidInterface, i.TypeName)
	}
	return nil
}

// Instance is a filter instance owned by a graph: a name, the resolved
// interface of its type, and its merged parameters. Execution-time state
// lives in a Context, not here.
type Instance struct {
	Name      string
	TypeName  string
	Interface Interface
	Params    cty.Value
}

// Detail returns the diagnostic name of the instance.
func (f *Instance) Detail() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.TypeName)
}

// MergeParams overlays caller-supplied overrides onto declared defaults.
// Both must be object values (or NilVal). Object-typed attributes merge
// recursively; anything else is replaced wholesale.
func MergeParams(defaults, overrides cty.Value) cty.Value {
	if defaults == cty.NilVal || defaults.IsNull() {
		if overrides == cty.NilVal {
			return cty.EmptyObjectVal
		}
		return overrides
	}
	if overrides == cty.NilVal || overrides.IsNull() {
		return defaults
	}
	merged := make(map[string]cty.Value)
	for name, v := range defaults.AsValueMap() {
		merged[name] = v
	}
	for name, v := range overrides.AsValueMap() {
		if prev, ok := merged[name]; ok &&
			prev.Type().IsObjectType() && v.Type().IsObjectType() {
			merged[name] = MergeParams(prev, v)
			continue
		}
		merged[name] = v
	}
	if len(merged) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(merged)
}
