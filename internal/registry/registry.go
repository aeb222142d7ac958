// Package registry holds the service's name -> Table map (§3: "tables:
// name -> shared(Table), immutable after init").
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/quantarax/replaybuffer/internal/table"
)

// ErrTableNotFound is returned by Lookup for an unknown table name, and is
// the root cause surfaced as NotFound by every RPC that resolves a table
// (§4.3, §4.4, §4.5, §4.10).
var ErrTableNotFound = errors.New("table not found")

// Registry is the read-only-after-init table map of §3/§5 ("the tables map
// is read-only after init; lookups need no locking"). Build it with Install
// during Initialize, then only call Lookup/All/Close.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]table.Table
	sealed bool
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{tables: make(map[string]table.Table)}
}

// Install adds t under its own Name(), as part of §4.9 step 2 ("Install
// each table into tables[table.name()]"). Install panics if called after
// Seal, since the table map is read-only once sealed.
func (r *Registry) Install(t table.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("registry: Install called after Seal")
	}
	r.tables[t.Name()] = t
}

// Seal freezes the table map. Lookup still takes a read lock, which after
// Seal is only ever contended by other readers.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup resolves a table by name, the operation every RPC performs before
// touching a Table (§4.3 step 3, §4.4, §4.5, §4.10 step 3).
func (r *Registry) Lookup(name string) (table.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// All returns every installed table, sorted by name, for ServerInfo (§4.8).
func (r *Registry) All() []table.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]table.Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Close closes every installed table.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, t := range r.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
