package filter

import (
	"context"
	"fmt"

	"github.com/insituflow/flume/internal/ctxlog"
)

// Table maps filter type names to their registered capability sets. Each
// workspace owns one table; there is no process-global registry.
type Table struct {
	types  map[string]*Registered
	ifaces map[string]Interface
}

// NewTable returns an empty filter-type table.
func NewTable() *Table {
	return &Table{
		types:  make(map[string]*Registered),
		ifaces: make(map[string]Interface),
	}
}

// Register declares a filter type: the capability set is probed once for its
// interface, which is sanity checked. Registering a name twice keeps the
// first registration and logs a warning.
func (t *Table) Register(ctx context.Context, r *Registered) error {
	if r == nil || r.Declare == nil || r.VerifyParams == nil || r.Execute == nil {
		return fmt.Errorf("%w: registration needs declare, verify_params and execute", ErrInvalidInterface)
	}
	iface := r.Declare()
	if err := VerifyInterface(iface); err != nil {
		return err
	}
	if _, exists := t.types[iface.TypeName]; exists {
		ctxlog.FromContext(ctx).Warn("Filter type already registered, keeping first registration.",
			"type", iface.TypeName)
		return nil
	}
	t.types[iface.TypeName] = r
	t.ifaces[iface.TypeName] = iface
	return nil
}

// Has reports whether a type name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.types[name]
	return ok
}

// Lookup returns the capability set and declared interface of a type.
func (t *Table) Lookup(name string) (*Registered, Interface, bool) {
	r, ok := t.types[name]
	if !ok {
		return nil, Interface{}, false
	}
	return r, t.ifaces[name], true
}
