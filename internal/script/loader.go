// Package script runs lua-dialect commands. Every command gets its own
// interpreter, so definitions installed for one command never reach another.
package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/invoker"
	"github.com/danmuck/remotectl/internal/loader"
	"github.com/danmuck/remotectl/internal/storage"
	"github.com/rs/zerolog/log"
)

const definitionsKey = "remotectl.definitions"

var ErrEmptySource = errors.New("script: definition has no source")

// Globals removed from every interpreter. Scripts reach the host only through
// ctx and use.
var unsafeGlobals = []string{"dofile", "loadfile", "require", "package", "io", "os", "debug"}

// RegisterTypes makes script failures encodable.
func RegisterTypes(reg *codec.Registry) error {
	return reg.Register(ErrorType, &Error{})
}

type Loader struct {
	codec *codec.Registry
}

func New(reg *codec.Registry) *Loader {
	return &Loader{codec: reg}
}

// Load installs the definition, then its dependencies, into a fresh
// interpreter and binds the decoded arguments to the entry function. A
// dependency sharing the definition's name is ignored.
func (l *Loader) Load(cmd command.Command) (invoker.Step, error) {
	def, err := command.UnmarshalDefinition(cmd.Definition())
	if err != nil {
		return nil, err
	}
	inv, err := command.UnmarshalInvocation(cmd.Payload())
	if err != nil {
		return nil, err
	}

	s := newStep(inv.Entry)
	if err := s.install(def); err != nil {
		return nil, err
	}
	for i, raw := range cmd.Dependencies() {
		dep, err := command.UnmarshalDefinition(raw)
		if err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
		if err := s.install(dep); err != nil {
			return nil, err
		}
	}
	if !s.defined(inv.Entry) {
		return nil, &loader.NotInstalledError{Name: inv.Entry}
	}

	s.args = make([]any, 0, len(inv.Args))
	for i, raw := range inv.Args {
		v, err := l.codec.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, inv.Entry, err)
		}
		s.args = append(s.args, v)
	}
	log.Debug().Str("entry", inv.Entry).Int("dependencies", len(cmd.Dependencies())).Msg("script loaded")
	return s, nil
}

type step struct {
	state *lua.State
	entry string
	args  []any

	// ctx is only set while Invoke runs.
	ctx    storage.Context
	raised error
}

func newStep(entry string) *step {
	s := &step{state: lua.NewState(), entry: entry}
	lua.OpenLibraries(s.state)
	for _, name := range unsafeGlobals {
		s.state.PushNil()
		s.state.SetGlobal(name)
	}
	s.state.NewTable()
	s.state.SetField(lua.RegistryIndex, definitionsKey)

	s.state.Register("use", s.use)
	s.state.NewTable()
	lua.SetFunctions(s.state, []lua.RegistryFunction{
		{Name: "get", Function: s.ctxGet},
		{Name: "set", Function: s.ctxSet},
		{Name: "has", Function: s.ctxHas},
		{Name: "delete", Function: s.ctxDelete},
		{Name: "keys", Function: s.ctxKeys},
		{Name: "snapshot", Function: s.ctxSnapshot},
	}, 0)
	s.state.SetGlobal("ctx")
	return s
}

// install runs a definition chunk and stores the function it returns under
// the definition's name. Installing a name twice keeps the first.
func (s *step) install(def command.Definition) error {
	if def.Dialect != command.DialectLua {
		return fmt.Errorf("%w: definition %q is %q", command.ErrDialectMismatch, def.Name, def.Dialect)
	}
	if strings.TrimSpace(def.Source) == "" {
		return fmt.Errorf("%w: %q", ErrEmptySource, def.Name)
	}
	if s.defined(def.Name) {
		return nil
	}

	state := s.state
	base := state.Top()
	defer state.SetTop(base)
	if err := lua.LoadBuffer(state, def.Source, "="+def.Name, "t"); err != nil {
		return s.failure(def.Name, base, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return s.failure(def.Name, base, err)
	}
	if !state.IsFunction(-1) {
		return &Error{Name: def.Name, Message: "definition must return a function, got " + lua.TypeNameOf(state, -1)}
	}
	state.Field(lua.RegistryIndex, definitionsKey)
	state.Insert(-2)
	state.SetField(-2, def.Name)
	return nil
}

func (s *step) defined(name string) bool {
	s.state.Field(lua.RegistryIndex, definitionsKey)
	s.state.Field(-1, name)
	ok := s.state.IsFunction(-1)
	s.state.Pop(2)
	return ok
}

// Invoke calls the entry function with the bound arguments followed by the
// carried value. A return value with no Go form comes back as an opaqueValue.
func (s *step) Invoke(ctx storage.Context, input any) (any, error) {
	s.ctx, s.raised = ctx, nil
	defer func() { s.ctx = nil }()

	state := s.state
	base := state.Top()
	defer state.SetTop(base)
	state.Field(lua.RegistryIndex, definitionsKey)
	state.Field(-1, s.entry)
	for i, a := range s.args {
		if err := push(state, a); err != nil {
			return nil, &Error{Name: s.entry, Message: fmt.Sprintf("argument %d: %v", i, err)}
		}
	}
	if err := push(state, input); err != nil {
		return nil, &Error{Name: s.entry, Message: "carried value: " + err.Error()}
	}
	if err := state.ProtectedCall(len(s.args)+1, 1, 0); err != nil {
		return nil, s.failure(s.entry, base+1, err)
	}
	return returned(state, -1), nil
}

// failure turns a lua error into a Go error. A Go error raised from inside a
// host function is returned as is so its type survives.
func (s *step) failure(name string, base int, err error) error {
	msg := err.Error()
	if s.state.Top() > base {
		if m, ok := s.state.ToString(-1); ok {
			msg = m
		}
	}
	if s.raised != nil && strings.Contains(msg, s.raised.Error()) {
		return s.raised
	}
	return &Error{Name: name, Message: msg}
}

func (s *step) raise(state *lua.State, err error) {
	s.raised = err
	lua.Errorf(state, "%s", err.Error())
}

func (s *step) use(state *lua.State) int {
	name := lua.CheckString(state, 1)
	state.Field(lua.RegistryIndex, definitionsKey)
	state.Field(-1, name)
	if !state.IsFunction(-1) {
		s.raise(state, &loader.NotInstalledError{Name: name})
		return 0
	}
	return 1
}

func (s *step) context(state *lua.State) storage.Context {
	if s.ctx == nil {
		lua.Errorf(state, "ctx is only available while a command runs")
	}
	return s.ctx
}

func (s *step) ctxGet(state *lua.State) int {
	ctx := s.context(state)
	v, err := ctx.Get(lua.CheckString(state, 1))
	if err != nil {
		s.raise(state, err)
		return 0
	}
	if err := push(state, v); err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	return 1
}

func (s *step) ctxSet(state *lua.State) int {
	ctx := s.context(state)
	key := lua.CheckString(state, 1)
	v, err := value(state, 2)
	if err != nil {
		lua.ArgumentError(state, 2, err.Error())
		return 0
	}
	ctx.Set(key, v)
	return 0
}

func (s *step) ctxHas(state *lua.State) int {
	_, ok := s.context(state).Lookup(lua.CheckString(state, 1))
	state.PushBoolean(ok)
	return 1
}

func (s *step) ctxDelete(state *lua.State) int {
	s.context(state).Delete(lua.CheckString(state, 1))
	return 0
}

func (s *step) ctxKeys(state *lua.State) int {
	if err := push(state, s.context(state).Keys()); err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	return 1
}

func (s *step) ctxSnapshot(state *lua.State) int {
	if err := push(state, s.context(state).Snapshot()); err != nil {
		lua.Errorf(state, "%s", err.Error())
		return 0
	}
	return 1
}
