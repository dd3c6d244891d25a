// Package transforms provides the generic dataflow filters used by action
// files and tests: a constant source, a pass-through, and a blueprint
// conformance check on the published dataset.
package transforms

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/mesh"
	"github.com/insituflow/flume/internal/workspace"
)

// Module implements the workspace module interface for this package.
type Module struct{}

// Register adds the transform filters to the workspace's type table.
func (m *Module) Register(ctx context.Context, w *workspace.Workspace) error {
	all := []*filter.Registered{
		sourceConstFilter(), identityFilter(), blueprintVerifyFilter(),
	}
	for _, r := range all {
		if err := w.RegisterType(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// sourceConstFilter emits its numeric value parameter.
func sourceConstFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "source_const",
				OutputPort: true,
				DefaultParams: cty.ObjectVal(map[string]cty.Value{
					"value": cty.NumberIntVal(0),
				}),
			}
		},
		VerifyParams: func(params cty.Value, info *filter.Info) bool {
			v := params.GetAttr("value")
			if v.IsNull() || v.Type() != cty.Number {
				info.AddError("Missing required numeric parameter %q", "value")
				return false
			}
			return true
		},
		Execute: func(ctx context.Context, fc *filter.Context) error {
			f, _ := fc.Param("value").AsBigFloat().Float64()
			filter.SetOwnedOutput(fc, f)
			return nil
		},
	}
}

// identityFilter passes its input box through untouched. The scheduler
// counts the pass-through as one read of the producer.
func identityFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "identity",
				PortNames:  []string{"in"},
				OutputPort: true,
			}
		},
		VerifyParams: func(params cty.Value, info *filter.Info) bool { return true },
		Execute: func(ctx context.Context, fc *filter.Context) error {
			b, err := fc.Input("in")
			if err != nil {
				return err
			}
			fc.SetOutput(b.Borrow())
			return nil
		},
	}
}

// blueprintVerifyFilter checks the published dataset against the blueprint
// schema and yields a boolean result.
func blueprintVerifyFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "blueprint_verify", OutputPort: true}
		},
		VerifyParams: func(params cty.Value, info *filter.Info) bool { return true },
		Execute: func(ctx context.Context, fc *filter.Context) error {
			b, err := fc.Registry().Fetch(expr.DatasetKey)
			if err != nil {
				return fmt.Errorf("%s: missing published dataset: %w", fc.Detail(), err)
			}
			ds, err := box.Get[*mesh.Dataset](b)
			if err != nil {
				return err
			}
			if err := mesh.Verify(ds); err != nil {
				return err
			}
			filter.SetOwnedOutput(fc, true)
			return nil
		},
	}
}
