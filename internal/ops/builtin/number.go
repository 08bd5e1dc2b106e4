package builtin

import (
	"fmt"
	"math"
)

type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// toNumber treats an absent operand as zero.
func toNumber(op string, v any) (number, error) {
	switch x := v.(type) {
	case nil:
		return number{}, nil
	case int:
		return number{i: int64(x)}, nil
	case int8:
		return number{i: int64(x)}, nil
	case int16:
		return number{i: int64(x)}, nil
	case int32:
		return number{i: int64(x)}, nil
	case int64:
		return number{i: x}, nil
	case uint:
		return fromUnsigned(op, uint64(x))
	case uint8:
		return number{i: int64(x)}, nil
	case uint16:
		return number{i: int64(x)}, nil
	case uint32:
		return number{i: int64(x)}, nil
	case uint64:
		return fromUnsigned(op, x)
	case float32:
		return number{f: float64(x), isFloat: true}, nil
	case float64:
		return number{f: x, isFloat: true}, nil
	default:
		return number{}, &ArithmeticError{Op: op, Message: fmt.Sprintf("operand of type %T is not a number", v)}
	}
}

func fromUnsigned(op string, x uint64) (number, error) {
	if x > math.MaxInt64 {
		return number{}, &ArithmeticError{Op: op, Message: "operand overflows int64"}
	}
	return number{i: int64(x)}, nil
}

func arith(op string, a, b number) (any, error) {
	if a.isFloat || b.isFloat {
		x, y := a.float(), b.float()
		switch op {
		case opAdd:
			return x + y, nil
		case opSub:
			return x - y, nil
		case opMul:
			return x * y, nil
		case opDiv:
			if y == 0 {
				return nil, &ArithmeticError{Op: op, Message: "division by zero"}
			}
			return x / y, nil
		}
		return nil, &ArithmeticError{Op: op, Message: "unknown operator"}
	}

	x, y := a.i, b.i
	overflow := &ArithmeticError{Op: op, Message: "integer overflow"}
	switch op {
	case opAdd:
		r := x + y
		if (y > 0 && r < x) || (y < 0 && r > x) {
			return nil, overflow
		}
		return r, nil
	case opSub:
		r := x - y
		if (y < 0 && r < x) || (y > 0 && r > x) {
			return nil, overflow
		}
		return r, nil
	case opMul:
		if x == 0 || y == 0 {
			return int64(0), nil
		}
		r := x * y
		if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return nil, overflow
		}
		return r, nil
	case opDiv:
		if y == 0 {
			return nil, &ArithmeticError{Op: op, Message: "division by zero"}
		}
		if x == math.MinInt64 && y == -1 {
			return nil, overflow
		}
		return x / y, nil
	}
	return nil, &ArithmeticError{Op: op, Message: "unknown operator"}
}
