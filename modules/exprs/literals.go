package exprs

import (
	"context"
	"fmt"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
)

func integerFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_integer", OutputPort: true}
		},
		VerifyParams: requireParam("value", "numeric"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			v, _ := fc.Param("value").AsBigFloat().Int64()
			emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			return nil
		},
	}
}

func doubleFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_double", OutputPort: true}
		},
		VerifyParams: requireParam("value", "numeric"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			v, _ := fc.Param("value").AsBigFloat().Float64()
			emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			return nil
		},
	}
}

// expr_string produces a plain string value; quoted literals in expressions
// lower as meshvar instead, so this type serves action files and tests.
func stringFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_string", OutputPort: true}
		},
		VerifyParams: requireParam("value", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			emit(fc, &expr.Result{Value: fc.Param("value").AsString(), Type: expr.TypeString})
			return nil
		},
	}
}

func booleanFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_boolean", OutputPort: true}
		},
		VerifyParams: requireParam("value", "boolean"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			emit(fc, &expr.Result{Value: fc.Param("value").True(), Type: expr.TypeBoolean})
			return nil
		},
	}
}

func meshVarFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_meshvar", OutputPort: true}
		},
		VerifyParams: requireParam("value", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			emit(fc, &expr.Result{Value: fc.Param("value").AsString(), Type: expr.TypeMeshVar})
			return nil
		},
	}
}

// expr_identifier reads the most recent cached result for its name.
func identifierFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{TypeName: "expr_identifier", OutputPort: true}
		},
		VerifyParams: requireParam("value", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			name := fc.Param("value").AsString()
			b, err := fc.Registry().Fetch(expr.CacheKey)
			if err != nil {
				return fmt.Errorf("%s: missing expression cache: %w", fc.Detail(), err)
			}
			cache, err := box.Get[expr.Cache](b)
			if err != nil {
				return err
			}
			latest, ok := cache.Latest(name)
			if !ok {
				return fmt.Errorf("%w: %q", expr.ErrUnknownIdentifier, name)
			}
			emit(fc, latest)
			return nil
		},
	}
}
