package exprs

import (
	"context"
	"fmt"

	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
	"github.com/insituflow/flume/internal/reduce"
)

func scalarExtremum(typeName string, better func(a, b float64) bool) *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   typeName,
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
			arg2, err := result(fc, "arg2")
			if err != nil {
				return err
			}
			// Integer form survives only if both operands are integers.
			if !arg1.IsFloat() && !arg2.IsFloat() {
				a, err := arg1.Int64()
				if err != nil {
					return err
				}
				b, err := arg2.Int64()
				if err != nil {
					return err
				}
				v := a
				if better(float64(b), float64(a)) {
					v = b
				}
				emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
				return nil
			}
			a, err := arg1.Float64()
			if err != nil {
				return err
			}
			b, err := arg2.Float64()
			if err != nil {
				return err
			}
			v := a
			if better(b, a) {
				v = b
			}
			emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			return nil
		},
	}
}

func scalarMaxFilter() *filter.Registered {
	return scalarExtremum("scalar_max", func(a, b float64) bool { return a > b })
}

func scalarMinFilter() *filter.Registered {
	return scalarExtremum("scalar_min", func(a, b float64) bool { return a < b })
}

func aggregateResult(agg *reduce.Aggregate) *expr.Result {
	r := &expr.Result{Value: agg.Value, Type: expr.TypeScalar}
	r.SetAtt(expr.AttPosition, agg.Position)
	r.SetAtt(expr.AttIndex, int64(agg.Index))
	r.SetAtt(expr.AttDomainID, int64(agg.DomainID))
	r.SetAtt(expr.AttRank, int64(agg.Rank))
	return r
}

func fieldExtremum(typeName string, run func(fc *filter.Context, field string) (*reduce.Aggregate, error)) *filter.Registered {
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
			field, err := fieldName(fc, "arg1")
			if err != nil {
				return err
			}
			agg, err := run(fc, field)
			if err != nil {
				return err
			}
			emit(fc, aggregateResult(agg))
			return nil
		},
	}
}

func fieldMinFilter() *filter.Registered {
	return fieldExtremum("field_min", func(fc *filter.Context, field string) (*reduce.Aggregate, error) {
		ds, err := dataset(fc)
		if err != nil {
			return nil, err
		}
		return reduce.FieldMin(fc.Comm(), ds, field)
	})
}

func fieldMaxFilter() *filter.Registered {
	return fieldExtremum("field_max", func(fc *filter.Context, field string) (*reduce.Aggregate, error) {
		ds, err := dataset(fc)
		if err != nil {
			return nil, err
		}
		return reduce.FieldMax(fc.Comm(), ds, field)
	})
}

func fieldSumFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "field_sum",
				PortNames:  []string{"arg1"},
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
			sum, count, err := reduce.FieldSum(fc.Comm(), ds, field)
			if err != nil {
				return err
			}
			r := &expr.Result{Value: sum, Type: expr.TypeScalar}
			r.SetAtt(expr.AttCount, count)
			emit(fc, r)
			return nil
		},
	}
}

func fieldAvgFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "field_avg",
				PortNames:  []string{"arg1"},
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
			avg, err := reduce.FieldAvg(fc.Comm(), ds, field)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: avg, Type: expr.TypeScalar})
			return nil
		},
	}
}

func countingFilter(typeName string, run func(fc *filter.Context, field string) (int64, error)) *filter.Registered {
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
			field, err := fieldName(fc, "arg1")
			if err != nil {
				return err
			}
			count, err := run(fc, field)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: count, Type: expr.TypeScalar})
			return nil
		},
	}
}

func nanCountFilter() *filter.Registered {
	return countingFilter("field_nan_count", func(fc *filter.Context, field string) (int64, error) {
		ds, err := dataset(fc)
		if err != nil {
			return 0, err
		}
		return reduce.FieldNanCount(fc.Comm(), ds, field)
	})
}

func infCountFilter() *filter.Registered {
	return countingFilter("field_inf_count", func(fc *filter.Context, field string) (int64, error) {
		ds, err := dataset(fc)
		if err != nil {
			return 0, err
		}
		return reduce.FieldInfCount(fc.Comm(), ds, field)
	})
}

func cycleFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "cycle", OutputPort: true}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			ds, err := dataset(fc)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: ds.Cycle(), Type: expr.TypeScalar})
			return nil
		},
	}
}

func positionFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "expr_position",
				PortNames:  []string{"arg1"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			in, err := result(fc, "arg1")
			if err != nil {
				return err
			}
			att, ok := in.Att(expr.AttPosition)
			if !ok {
				return fmt.Errorf("input does not have %q attribute", expr.AttPosition)
			}
			pos, ok := att.([3]float64)
			if !ok {
				return fmt.Errorf("%q attribute is not a vector", expr.AttPosition)
			}
			emit(fc, &expr.Result{Value: pos, Type: expr.TypeVector})
			return nil
		},
	}
}
