package command

import "sort"

// Dialect names the wire variant a command carries.
type Dialect string

const (
	// DialectOp commands reference operations registered on the server.
	DialectOp Dialect = "op"
	// DialectLua commands carry Lua source run in a sandboxed state.
	DialectLua Dialect = "lua"
)

func (d Dialect) String() string { return string(d) }

// Valid reports whether d is usable as a discriminator: short, lowercase
// letters, digits or dashes.
func (d Dialect) Valid() bool {
	if d == "" || len(d) > 32 {
		return false
	}
	for _, r := range d {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// DialectSet is the set of dialects a receiver can decode.
type DialectSet map[Dialect]struct{}

func KnownDialects(ds ...Dialect) DialectSet {
	out := make(DialectSet, len(ds))
	for _, d := range ds {
		out[d] = struct{}{}
	}
	return out
}

func (s DialectSet) Contains(d Dialect) bool {
	_, ok := s[d]
	return ok
}

func (s DialectSet) Sorted() []Dialect {
	out := make([]Dialect, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
