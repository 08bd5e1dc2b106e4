package client

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/remotectl/internal/command"
)

// NestedSeparator joins a root artifact name and the suffix of an artifact
// nested inside it.
const NestedSeparator = "$"

// Catalog finds the artifacts nested inside a root definition. Finding none
// is not an error.
type Catalog interface {
	Nested(root command.Definition) ([]command.Definition, error)
}

// MemoryCatalog holds nested definitions registered in process.
type MemoryCatalog struct {
	mu     sync.RWMutex
	nested map[string][]command.Definition
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{nested: make(map[string][]command.Definition)}
}

// Add records defs as nested inside root. Each name must start with
// root + NestedSeparator.
func (c *MemoryCatalog) Add(root string, defs ...command.Definition) error {
	for _, d := range defs {
		if !strings.HasPrefix(d.Name, root+NestedSeparator) {
			return fmt.Errorf("client: %q is not nested inside %q", d.Name, root)
		}
		if err := d.Validate(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nested[root] = append(c.nested[root], defs...)
	return nil
}

func (c *MemoryCatalog) Nested(root command.Definition) ([]command.Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]command.Definition(nil), c.nested[root.Name]...), nil
}

// FSCatalog discovers Lua artifacts in a filesystem. A script named
// "deploy/rollout" lives in deploy/rollout.lua and the artifacts nested in it
// are the files deploy/rollout$<suffix>.lua.
type FSCatalog struct {
	fsys fs.FS
}

func NewFSCatalog(fsys fs.FS) *FSCatalog {
	return &FSCatalog{fsys: fsys}
}

// Script loads name.lua as a fragment.
func (c *FSCatalog) Script(name string, args ...any) (*Fragment, error) {
	src, err := fs.ReadFile(c.fsys, name+".lua")
	if err != nil {
		return nil, fmt.Errorf("client: load script %q: %w", name, err)
	}
	return Script(name, string(src), args...), nil
}

func (c *FSCatalog) Nested(root command.Definition) ([]command.Definition, error) {
	if root.Dialect != command.DialectLua {
		return nil, nil
	}
	dir, base := path.Split(root.Name)
	pattern := path.Join(dir, escapeGlob(base)+NestedSeparator+"*.lua")
	matches, err := fs.Glob(c.fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("client: scan nested artifacts of %q: %w", root.Name, err)
	}
	sort.Strings(matches)

	out := make([]command.Definition, 0, len(matches))
	for _, m := range matches {
		src, err := fs.ReadFile(c.fsys, m)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("client: read %s: %w", m, err)
		}
		out = append(out, command.Definition{
			Name:    strings.TrimSuffix(m, ".lua"),
			Dialect: command.DialectLua,
			Source:  string(src),
		})
	}
	return out, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
