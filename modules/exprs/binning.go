package exprs

import (
	"context"
	"fmt"
	"math"

	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/reduce"
)

func nextAfterUp(v float64) float64 {
	return math.Nextafter(v, math.Inf(1))
}

func errNotHistogram(fc *filter.Context, port string) error {
	return fmt.Errorf("%s input %q is not a histogram", fc.Detail(), port)
}

// readAxis decodes one axis quadruple starting at the given port index.
func readAxis(fc *filter.Context, base int) (reduce.Axis, error) {
	var axis reduce.Axis
	name, err := result(fc, fmt.Sprintf("arg%d", base))
	if err != nil {
		return axis, err
	}
	if axis.Name, err = name.String(); err != nil {
		return axis, err
	}
	min, err := result(fc, fmt.Sprintf("arg%d", base+1))
	if err != nil {
		return axis, err
	}
	if axis.Min, err = min.Float64(); err != nil {
		return axis, err
	}
	max, err := result(fc, fmt.Sprintf("arg%d", base+2))
	if err != nil {
		return axis, err
	}
	if axis.Max, err = max.Float64(); err != nil {
		return axis, err
	}
	bins, err := result(fc, fmt.Sprintf("arg%d", base+3))
	if err != nil {
		return axis, err
	}
	n, err := bins.Int64()
	if err != nil {
		return axis, err
	}
	axis.Bins = int(n)
	return axis, nil
}

// binningFilter bins a field over one or two axes: arg1 is the field, arg2
// the reduction name, then per axis (name, min, max, bins).
func binningFilter() *filter.Registered {
	ports := make([]string, 10)
	for i := range ports {
		ports[i] = fmt.Sprintf("arg%d", i+1)
	}
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "binning",
				PortNames:  ports,
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			field, err := fieldName(fc, "arg1")
			if err != nil {
				return err
			}
			arg2, err := result(fc, "arg2")
			if err != nil {
				return err
			}
			reduction, err := arg2.String()
			if err != nil {
				return err
			}

			axes := []reduce.Axis{}
			for base := 3; base <= 7; base += 4 {
				if _, ok := optional(fc, fmt.Sprintf("arg%d", base)); !ok {
					break
				}
				axis, err := readAxis(fc, base)
				if err != nil {
					return err
				}
				axes = append(axes, axis)
			}

			ds, err := dataset(fc)
			if err != nil {
				return err
			}
			b, err := reduce.FieldBinning(fc.Comm(), ds, field, axes, reduction)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: b, Type: expr.TypeBinning})
			return nil
		},
	}
}

// paintBinningFilter writes a binning back onto the mesh as a new field and
// yields that field's name.
func paintBinningFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "paint_binning",
				PortNames:  []string{"arg1", "arg2"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			arg1, err := result(fc, "arg1")
			if err != nil {
				return err
			}
			b, ok := arg1.Value.(*reduce.Binning)
			if !ok {
				return fmt.Errorf("%s input %q is not a binning", fc.Detail(), "arg1")
			}
			arg2, err := result(fc, "arg2")
			if err != nil {
				return err
			}
			outField, err := arg2.String()
			if err != nil {
				return err
			}
			ds, err := dataset(fc)
			if err != nil {
				return err
			}
			if err := reduce.PaintBinning(b, ds, outField); err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: outField, Type: expr.TypeMeshVar})
			return nil
		},
	}
}
