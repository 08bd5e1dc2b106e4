// Package builtin holds the operations every receiver ships with.
package builtin

import (
	"fmt"

	"github.com/danmuck/remotectl/internal/ops"
)

const (
	opAdd = "math.add"
	opSub = "math.sub"
	opMul = "math.mul"
	opDiv = "math.div"
)

// Operations returns a fresh set of builtin operations.
func Operations() []ops.Operation {
	return []ops.Operation{
		mathOp(opAdd, "add the bound operand to the carried value"),
		mathOp(opSub, "subtract the bound operand from the carried value"),
		mathOp(opMul, "multiply the carried value by the bound operand"),
		mathOp(opDiv, "divide the carried value by the bound operand"),
		ops.Func{
			Meta: ops.Metadata{ID: "value.const", Description: "return the bound value, ignoring the carried one"},
			Fn:   func(c ops.Call) (any, error) { return c.Arg(0), nil },
		},
		ops.Func{
			Meta: ops.Metadata{ID: "value.identity", Description: "return the carried value", Params: 1},
			Fn:   func(c ops.Call) (any, error) { return c.Input, nil },
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.get", Description: "read a context key"},
			Fn:   ctxGet,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.put", Description: "store the bound value under a context key"},
			Fn:   ctxPut,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.set", Description: "store the carried value under a context key", Params: 1},
			Fn:   ctxSet,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.delete", Description: "remove a context key and pass the carried value on", Params: 1},
			Fn:   ctxDelete,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.keys", Description: "list context keys in sorted order"},
			Fn:   func(c ops.Call) (any, error) { return c.Context.Keys(), nil },
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.snapshot", Description: "return a shallow copy of the whole context"},
			Fn:   func(c ops.Call) (any, error) { return c.Context.Snapshot(), nil },
		},
		ops.Func{
			Meta: ops.Metadata{ID: "ctx.incr", Description: "add a delta (default 1) to a numeric context key"},
			Fn:   ctxIncr,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "core.apply", Description: "invoke another installed operation with extra bound arguments", Params: 1},
			Fn:   coreApply,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "core.fail", Description: "fail with an application error", Params: 1},
			Fn:   coreFail,
		},
		ops.Func{
			Meta: ops.Metadata{ID: "text.format", Description: "format the carried value with a printf layout", Params: 1},
			Fn:   textFormat,
		},
	}
}

// Register installs every builtin operation into reg.
func Register(reg *ops.Registry) error {
	for _, op := range Operations() {
		if err := reg.Register(op); err != nil {
			return err
		}
	}
	return nil
}

func mathOp(id, desc string) ops.Operation {
	return ops.Func{
		Meta: ops.Metadata{ID: id, Description: desc, Params: 1},
		Fn: func(c ops.Call) (any, error) {
			a, err := toNumber(id, c.Input)
			if err != nil {
				return nil, err
			}
			b, err := toNumber(id, c.Arg(0))
			if err != nil {
				return nil, err
			}
			return arith(id, a, b)
		},
	}
}

func keyArg(op string, c ops.Call) (string, error) {
	key, ok := c.Arg(0).(string)
	if !ok || key == "" {
		return "", badArgument(op, "first argument must be a non-empty key, got %T", c.Arg(0))
	}
	return key, nil
}

func ctxGet(c ops.Call) (any, error) {
	key, err := keyArg("ctx.get", c)
	if err != nil {
		return nil, err
	}
	return c.Context.Get(key)
}

func ctxPut(c ops.Call) (any, error) {
	key, err := keyArg("ctx.put", c)
	if err != nil {
		return nil, err
	}
	v := c.Arg(1)
	c.Context.Set(key, v)
	return v, nil
}

func ctxSet(c ops.Call) (any, error) {
	key, err := keyArg("ctx.set", c)
	if err != nil {
		return nil, err
	}
	c.Context.Set(key, c.Input)
	return c.Input, nil
}

func ctxDelete(c ops.Call) (any, error) {
	key, err := keyArg("ctx.delete", c)
	if err != nil {
		return nil, err
	}
	c.Context.Delete(key)
	return c.Input, nil
}

func ctxIncr(c ops.Call) (any, error) {
	const id = "ctx.incr"
	key, err := keyArg(id, c)
	if err != nil {
		return nil, err
	}
	current, _ := c.Context.Lookup(key)
	a, err := toNumber(id, current)
	if err != nil {
		return nil, err
	}
	delta := c.Arg(1)
	if delta == nil {
		delta = int64(1)
	}
	b, err := toNumber(id, delta)
	if err != nil {
		return nil, err
	}
	next, err := arith(opAdd, a, b)
	if err != nil {
		return nil, err
	}
	c.Context.Set(key, next)
	return next, nil
}

func coreApply(c ops.Call) (any, error) {
	name, ok := c.Arg(0).(string)
	if !ok || name == "" {
		return nil, badArgument("core.apply", "first argument must be an operation id, got %T", c.Arg(0))
	}
	if c.Scope == nil {
		return nil, badArgument("core.apply", "no namespace to resolve %q in", name)
	}
	target, err := c.Scope.Resolve(name)
	if err != nil {
		return nil, err
	}
	inner := ops.Call{Context: c.Context, Args: c.Args[1:], Scope: c.Scope}
	if target.Metadata().Params > 0 {
		inner.Input = c.Input
	}
	return target.Invoke(inner)
}

func coreFail(c ops.Call) (any, error) {
	msg, _ := c.Arg(0).(string)
	if msg == "" {
		msg = fmt.Sprintf("failed with carried value %v", c.Input)
	}
	code, _ := c.Arg(1).(string)
	if code == "" {
		code = "failed"
	}
	return nil, &ApplicationError{Code: code, Message: msg}
}

func textFormat(c ops.Call) (any, error) {
	layout, ok := c.Arg(0).(string)
	if !ok {
		return nil, badArgument("text.format", "first argument must be a layout string, got %T", c.Arg(0))
	}
	return fmt.Sprintf(layout, c.Input), nil
}
