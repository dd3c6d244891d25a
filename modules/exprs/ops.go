package exprs

import (
	"context"
	"fmt"
	"math"

	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/filter"
)

func isMathOp(op string) bool {
	return op == "+" || op == "-" || op == "*" || op == "/" || op == "%"
}

func floatMath(lhs, rhs float64, op string) (float64, error) {
	switch op {
	case "+":
		return lhs + rhs, nil
	case "-":
		return lhs - rhs, nil
	case "*":
		return lhs * rhs, nil
	case "/":
		return lhs / rhs, nil
	case "%":
		return math.Mod(lhs, rhs), nil
	}
	return 0, fmt.Errorf("unknown math op %q", op)
}

func intMath(lhs, rhs int64, op string) (int64, error) {
	switch op {
	case "+":
		return lhs + rhs, nil
	case "-":
		return lhs - rhs, nil
	case "*":
		return lhs * rhs, nil
	case "/":
		if rhs == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		return lhs / rhs, nil
	case "%":
		if rhs == 0 {
			return 0, fmt.Errorf("integer modulo by zero")
		}
		return lhs % rhs, nil
	}
	return 0, fmt.Errorf("unknown math op %q", op)
}

func compare(lhs, rhs float64, op string) (bool, error) {
	switch op {
	case "<":
		return lhs < rhs, nil
	case "<=":
		return lhs <= rhs, nil
	case ">":
		return lhs > rhs, nil
	case ">=":
		return lhs >= rhs, nil
	case "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	}
	return false, fmt.Errorf("unknown comparison op %q", op)
}

// expr_binary_op applies an operator to two results. Integer operands keep
// their integer representation through math ops until one side is a double;
// comparisons and logical ops produce booleans.
func binaryOpFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "expr_binary_op",
				PortNames:  []string{"lhs", "rhs"},
				OutputPort: true,
			}
		},
		VerifyParams: requireParam("op_string", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			op := fc.Param("op_string").AsString()
			lhs, err := result(fc, "lhs")
			if err != nil {
				return err
			}
			rhs, err := result(fc, "rhs")
			if err != nil {
				return err
			}

			if op == "and" || op == "or" {
				l, err := lhs.Bool()
				if err != nil {
					return err
				}
				r, err := rhs.Bool()
				if err != nil {
					return err
				}
				v := l && r
				if op == "or" {
					v = l || r
				}
				emit(fc, &expr.Result{Value: v, Type: expr.TypeBoolean})
				return nil
			}

			if lhs.Type == expr.TypeVector || rhs.Type == expr.TypeVector {
				return fmt.Errorf("vector binary ops not supported")
			}

			if isMathOp(op) {
				if lhs.IsFloat() || rhs.IsFloat() {
					l, err := lhs.Float64()
					if err != nil {
						return err
					}
					r, err := rhs.Float64()
					if err != nil {
						return err
					}
					v, err := floatMath(l, r, op)
					if err != nil {
						return err
					}
					emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
					return nil
				}
				l, err := lhs.Int64()
				if err != nil {
					return err
				}
				r, err := rhs.Int64()
				if err != nil {
					return err
				}
				v, err := intMath(l, r, op)
				if err != nil {
					return err
				}
				emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
				return nil
			}

			l, err := lhs.Float64()
			if err != nil {
				return err
			}
			r, err := rhs.Float64()
			if err != nil {
				return err
			}
			v, err := compare(l, r, op)
			if err != nil {
				return err
			}
			emit(fc, &expr.Result{Value: v, Type: expr.TypeBoolean})
			return nil
		},
	}
}

func unaryOpFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "expr_unary_op",
				PortNames:  []string{"operand"},
				OutputPort: true,
			}
		},
		VerifyParams: requireParam("op_string", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			op := fc.Param("op_string").AsString()
			operand, err := result(fc, "operand")
			if err != nil {
				return err
			}
			switch op {
			case "-":
				if i, ok := operand.Value.(int64); ok {
					emit(fc, &expr.Result{Value: -i, Type: expr.TypeScalar})
					return nil
				}
				v, err := operand.Float64()
				if err != nil {
					return err
				}
				emit(fc, &expr.Result{Value: -v, Type: expr.TypeScalar})
				return nil
			case "!":
				b, err := operand.Bool()
				if err != nil {
					return err
				}
				emit(fc, &expr.Result{Value: !b, Type: expr.TypeBoolean})
				return nil
			}
			return fmt.Errorf("unknown unary op %q", op)
		},
	}
}

// expr_if selects the then or else input by the condition. Both branches
// have already executed; selection only picks which result flows on.
func ifFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "expr_if",
				PortNames:  []string{"condition", "then", "else"},
				OutputPort: true,
			}
		},
		VerifyParams: noParams,
		Execute: func(ctx context.Context, fc *filter.Context) error {
			cond, err := result(fc, "condition")
			if err != nil {
				return err
			}
			take, err := cond.Bool()
			if err != nil {
				return err
			}
			port := "else"
			if take {
				port = "then"
			}
			branch, err := result(fc, port)
			if err != nil {
				return err
			}
			emit(fc, branch)
			return nil
		},
	}
}

// expr_dot projects one attribute of a result, such as the position or
// domain id of an extremum.
func dotFilter() *filter.Registered {
	return &filter.Registered{
		Declare: func() filter.Interface {
			return filter.Interface{
				TypeName:   "expr_dot",
				PortNames:  []string{"obj"},
				OutputPort: true,
			}
		},
		VerifyParams: requireParam("field", "string"),
		Execute: func(ctx context.Context, fc *filter.Context) error {
			field := fc.Param("field").AsString()
			obj, err := result(fc, "obj")
			if err != nil {
				return err
			}
			att, ok := obj.Att(field)
			if !ok {
				return fmt.Errorf("input does not have %q attribute", field)
			}
			switch v := att.(type) {
			case [3]float64:
				emit(fc, &expr.Result{Value: v, Type: expr.TypeVector})
			case int64:
				emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			case float64:
				emit(fc, &expr.Result{Value: v, Type: expr.TypeScalar})
			default:
				return fmt.Errorf("attribute %q has unsupported type", field)
			}
			return nil
		},
	}
}
