package client

import (
	"github.com/danmuck/remotectl/internal/command"
)

// Fragment is a piece of work the caller wants run remotely: an entry name in
// some dialect plus the arguments bound to it. A fragment may wrap another
// when it was produced by Curry.
type Fragment struct {
	name    string
	dialect command.Dialect
	source  string
	args    []any

	// inner is set on curry wrappers.
	inner *Fragment

	// Caller-side references. They never leave the client.
	delegate any
	owner    any
}

// Op references an operation registered on the receiver.
func Op(name string, args ...any) *Fragment {
	return &Fragment{name: name, dialect: command.DialectOp, args: args}
}

// Script carries Lua source whose chunk returns the entry function.
func Script(name, source string, args ...any) *Fragment {
	return &Fragment{name: name, dialect: command.DialectLua, source: source, args: args}
}

// Curry returns a wrapper binding more arguments after those already bound.
func (f *Fragment) Curry(args ...any) *Fragment {
	return &Fragment{inner: f, args: args}
}

// WithDelegate attaches a caller-side value the fragment resolves against
// locally. It is stripped before the fragment is encoded.
func (f *Fragment) WithDelegate(delegate any) *Fragment {
	f.delegate = delegate
	return f
}

func (f *Fragment) WithOwner(owner any) *Fragment {
	f.owner = owner
	return f
}

func (f *Fragment) Delegate() any { return f.delegate }

func (f *Fragment) Owner() any { return f.owner }

// Name returns the entry name of the fragment's root.
func (f *Fragment) Name() string { return f.root().name }

func (f *Fragment) Dialect() command.Dialect { return f.root().dialect }

func (f *Fragment) root() *Fragment {
	for f.inner != nil {
		f = f.inner
	}
	return f
}

// clone copies the wrapper chain and every argument slice.
func (f *Fragment) clone() *Fragment {
	if f == nil {
		return nil
	}
	c := *f
	c.args = append([]any(nil), f.args...)
	c.inner = f.inner.clone()
	return &c
}

// flatten unwraps curry wrappers and returns the root together with all
// bound arguments: the root's first, then each curry in application order.
func (f *Fragment) flatten() (*Fragment, []any) {
	var layers [][]any
	for f.inner != nil {
		layers = append(layers, f.args)
		f = f.inner
	}
	args := append([]any(nil), f.args...)
	for i := len(layers) - 1; i >= 0; i-- {
		args = append(args, layers[i]...)
	}
	return f, args
}

func (f *Fragment) definition() command.Definition {
	return command.Definition{Name: f.name, Dialect: f.dialect, Source: f.source}
}
