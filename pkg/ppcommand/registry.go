// Package ppcommand implements the process-wide command registry: a set of
// {uuid, name, multi_handler} entries filled once at program start and
// frozen against further registration afterward (core spec §3.4/§5/§9).
// Every read takes the registry's mutex, before and after the freeze.
package ppcommand

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zentalk/pproto/pkg/pptype"
)

// Existence result codes for Exists, matching core spec §6.6.
const (
	NotExists  = 0
	Exists     = 1
	Conflicted = 2 // same uuid registered twice with different traits
)

type entry struct {
	name         string
	multiHandler bool
}

// Registry is an append-only-before-freeze map from CommandId to
// {name, multi_handler}, guarded by a mutex that every read also takes.
// Use NewRegistry to create one.
type Registry struct {
	mu         sync.Mutex
	entries    map[pptype.CommandId]entry
	conflicted map[pptype.CommandId]bool
	frozen     atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:    make(map[pptype.CommandId]entry),
		conflicted: make(map[pptype.CommandId]bool),
	}
}

// Register adds a command entry. Panics if called after Freeze, which a
// socket's Start applies (core spec §5). Registering the same id twice
// with different {name, multi_handler} marks the id conflicted; CheckUnique
// reports it.
func (r *Registry) Register(id pptype.CommandId, name string, multiHandler bool) {
	if r.frozen.Load() {
		panic(fmt.Sprintf("ppcommand: Register(%s) called after Freeze", id))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		if existing != (entry{name: name, multiHandler: multiHandler}) {
			r.conflicted[id] = true
		}
		return
	}
	r.entries[id] = entry{name: name, multiHandler: multiHandler}
}

// Freeze stops further Register calls; reads are unaffected and still
// take the mutex. Safe to call more than once.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// LookupName returns the registered name for id, or "" if unknown.
func (r *Registry) LookupName(id pptype.CommandId) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].name
}

// MultiHandler reports whether id is registered with multi_handler=true.
// "multi_handler=true" means multiple handlers may fire for this command
// and none of them should mark the message processed (core spec §3.4).
func (r *Registry) MultiHandler(id pptype.CommandId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].multiHandler
}

// Exists reports NotExists, Exists or Conflicted for id (core spec §6.6).
func (r *Registry) Exists(id pptype.CommandId) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicted[id] {
		return Conflicted
	}
	if _, ok := r.entries[id]; ok {
		return Exists
	}
	return NotExists
}

// CheckUnique verifies no UUID maps to two distinct {name, multi_handler}
// tuples across every Register call made so far.
func (r *Registry) CheckUnique() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conflicted) == 0
}
