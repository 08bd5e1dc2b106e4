package ops

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrOperationExists = errors.New("ops: operation already exists")
	ErrOperationNil    = errors.New("ops: operation is nil")
	ErrInvalidMetadata = errors.New("ops: invalid operation metadata")
)

// Registry is the server-side allow-list of operations, keyed by stable id.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Operation
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Operation)}
}

// ValidateMetadata checks required metadata fields and id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	if id == "" || strings.TrimSpace(meta.Description) == "" {
		return fmt.Errorf("%w: id and description are required", ErrInvalidMetadata)
	}
	if !IsValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	if meta.Params < 0 || meta.Params > 1 {
		return fmt.Errorf("%w: params must be 0 or 1, got %d", ErrInvalidMetadata, meta.Params)
	}
	return nil
}

func (r *Registry) Register(op Operation) error {
	if op == nil {
		return ErrOperationNil
	}
	meta := op.Metadata()
	if err := ValidateMetadata(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[meta.ID]; ok {
		return fmt.Errorf("%w: %s", ErrOperationExists, meta.ID)
	}
	r.items[meta.ID] = op
	return nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(ops ...Operation) {
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Resolve(id string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.items[id]
	return op, ok
}

// ListMetadata returns deterministic metadata ordering by id.
func (r *Registry) ListMetadata() []Metadata {
	r.mu.RLock()
	list := make([]Metadata, 0, len(r.items))
	for _, op := range r.items {
		list = append(list, op.Metadata())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// IsValidID reports whether id is lowercase letters and digits separated by
// single '.', '-' or '_'.
func IsValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
