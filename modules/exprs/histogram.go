package exprs

import (
	"context"

	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/reduce"
)

// histogramFilter serves both call forms: histogram(field, min, max, bins)
// with all four ports bound, and histogram(field, bins) where the range is
// taken from the field's global extrema.
func histogramFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "histogram",
				PortNames:  []string{"arg1", "arg2", "arg3", "arg4"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			field, err := fieldName(fc, "arg1")
			if err != nil {
				return err
			}
			ds, err := dataset(fc)
			if err != nil {
				return err
			}

			var min, max float64
			var bins int64
			if arg4, ok := optional(fc, "arg4"); ok {
				arg2, err := result(fc, "arg2")
				if err != nil {
					return err
				}
				arg3, err := result(fc, "arg3")
				if err != nil {
					return err
				}
				if min, err = arg2.Float64(); err != nil {
					return err
				}
				if max, err = arg3.Float64(); err != nil {
					return err
				}
				if bins, err = arg4.Int64(); err != nil {
					return err
				}
			} else {
				arg2, err := result(fc, "arg2")
				if err != nil {
					return err
				}
				if bins, err = arg2.Int64(); err != nil {
					return err
				}
				lo, err := reduce.FieldMin(fc.Comm(), ds, field)
				if err != nil {
					return err
				}
				hi, err := reduce.FieldMax(fc.Comm(), ds, field)
				if err != nil {
					return err
				}
				min, max = lo.Value, hi.Value
				// Half-open bins drop the global maximum itself; widen the
				// top edge so it lands in the last bin.
				max = nextAfterUp(max)
			}

			h, err := reduce.FieldHistogram(fc.Comm(), ds, field, min, max, int(bins))
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: h, Type: expr.TypeHistogram})
			return nil
		},
	}
}

func histogramInput(fc *filter.Context, port string) (*reduce.Histogram, error) {
	r, err := result(fc, port)
	if err != nil {
		return nil, err
	}
	h, ok := r.Value.(*reduce.Histogram)
	if !ok {
		return nil, errNotHistogram(fc, port)
	}
	return h, nil
}

func histogramTransform(typeName string, run func(h *reduce.Histogram) (*expr.Result, error)) *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   typeName,
				PortNames:  []string{"arg1"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			h, err := histogramInput(fc, "arg1")
			if err != nil {
				return err
			}
			out, err := run(h)
			if err != nil {
				return err
			}
			emit(fc, out)
			return nil
		},
	}
}

func entropyFilter() *filter.Registered {
	return histogramTransform("entropy", func(h *reduce.Histogram) (*expr.Result, error) {
		e, err := reduce.Entropy(h)
		if err != nil {
			return nil, err
		}
		return &expr.Result{Value: e, Type: expr.TypeScalar}, nil
	})
}

func pdfFilter() *filter.Registered {
	return histogramTransform("pdf", func(h *reduce.Histogram) (*expr.Result, error) {
		p, err := reduce.Pdf(h)
		if err != nil {
			return nil, err
		}
		return &expr.Result{Value: p, Type: expr.TypeHistogram}, nil
	})
}

func cdfFilter() *filter.Registered {
	return histogramTransform("cdf", func(h *reduce.Histogram) (*expr.Result, error) {
		c, err := reduce.Cdf(h)
		if err != nil {
			return nil, err
		}
		return &expr.Result{Value: c, Type: expr.TypeHistogram}, nil
	})
}

// quantileFilter inverts a CDF; the optional third argument picks the
// interpolation mode, defaulting to linear.
func quantileFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "quantile",
				PortNames:  []string{"arg1", "arg2", "arg3"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			cdf, err := histogramInput(fc, "arg1")
			if err != nil {
				return err
			}
			arg2, err := result(fc, "arg2")
			if err != nil {
				return err
			}
			q, err := arg2.Float64()
			if err != nil {
				return err
			}
			interp := reduce.InterpLinear
			if arg3, ok := optional(fc, "arg3"); ok {
				if interp, err = arg3.String(); err != nil {
					return err
				}
			}
			v, err := reduce.Quantile(cdf, q, interp)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			return nil
		},
	}
}
