// Package exprs provides the builtin filters the expression evaluator
// lowers to: literal producers, the binary/unary/if/member operators, and
// the field reductions. Every filter exchanges *expr.Result boxes and reads
// the published dataset and expression cache through the pinned registry
// keys.
package exprs

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

// Register adds every expression builtin to the workspace's type table.
func (m *Module) Register(ctx context.Context, w *workspace.Workspace) error {
	all := []*filter.Registered{
		integerFilter(), doubleFilter(), stringFilter(), booleanFilter(),
		meshVarFilter(), identifierFilter(),
		binaryOpFilter(), unaryOpFilter(), ifFilter(), dotFilter(),
		scalarMinFilter(), scalarMaxFilter(),
		fieldMinFilter(), fieldMaxFilter(), fieldAvgFilter(), fieldSumFilter(),
		nanCountFilter(), infCountFilter(),
		cycleFilter(), positionFilter(),
		histogramFilter(), entropyFilter(), pdfFilter(), cdfFilter(), quantileFilter(),
		binningFilter(), paintBinningFilter(),
	}
	for _, r := range all {
		if err := w.RegisterType(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// result unboxes the Result bound to a port.
func result(fc *filter.Context, port string) (*expr.Result, error) {
	return filter.InputAs[*expr.Result](fc, port)
}

// optional unboxes a port that a shorter overload may have left empty.
func optional(fc *filter.Context, port string) (*expr.Result, bool) {
	b, err := fc.Input(port)
	if err != nil || b == nil {
		return nil, false
	}
	r, err := box.Get[*expr.Result](b)
	if err != nil {
		return nil, false
	}
	return r, true
}

// dataset reads the pinned published dataset.
func dataset(fc *filter.Context) (*mesh.Dataset, error) {
	b, err := fc.Registry().Fetch(expr.DatasetKey)
	if err != nil {
		return nil, fmt.Errorf("%s: missing published dataset: %w", fc.Detail(), err)
	}
	return box.Get[*mesh.Dataset](b)
}

// fieldName extracts the mesh field name from a meshvar argument.
func fieldName(fc *filter.Context, port string) (string, error) {
	r, err := result(fc, port)
	if err != nil {
		return "", err
	}
	return r.String()
}

func emit(fc *filter.Context, r *expr.Result) {
	filter.SetOwnedOutput(fc, r)
}

// requireParam is the shared VerifyParams body for filters with one
// mandatory parameter.
func requireParam(name, kind string) func(params cty.Value, info *filter.Info) bool {
	return func(params cty.Value, info *filter.Info) bool {
		if params == cty.NilVal || !params.Type().IsObjectType() ||
			!params.Type().HasAttribute(name) || params.GetAttr(name).IsNull() {
			info.AddError("Missing required %s parameter %q", kind, name)
			return false
		}
		return true
	}
}

func noParams(params cty.Value, info *filter.Info) bool { return true }
