// Package registry implements the ordered, reference-counted store that the
// workspace scheduler moves filter outputs through. Every entry pairs a key
// with a typed box and the number of reads it has left; the last read
// condemns the entry and a subsequent sweep releases it.
//
// Keys are not unique across time: re-adding a key pushes a new entry that
// shadows the previous one. Fetches see the newest entry, removals pop the
// newest first. The expression evaluator relies on this to keep a history of
// named results.
package registry

import (
	"fmt"

	"github.com/insituflow/flume/internal/box"
)

// Pinned marks an entry that is never auto-freed by fetches. Pinned entries
// live until Remove or Reset.
const Pinned = -1

// Error kinds raised by registry operations.
var (
	ErrMissingEntry = fmt.Errorf("missing registry entry")
	ErrExhausted    = fmt.Errorf("registry entry exhausted")
)

type entry struct {
	key   string
	box   *box.Box
	reads int
	order int
}

// Registry is an ordered map from keys to typed value boxes with per-entry
// read counters. The zero value is not usable; call New.
type Registry struct {
	entries []*entry            // insertion order, including condemned entries
	stacks  map[string][]*entry // per-key shadow stacks, newest last
	next    int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{stacks: make(map[string][]*entry)}
}

// Add stores b under key with the given read budget. reads must be Pinned or
// at least one. Adding a key that already exists pushes a shadowing entry.
func (r *Registry) Add(key string, b *box.Box, reads int) error {
	if reads != Pinned && reads < 1 {
		return fmt.Errorf("registry add %q: reads must be %d or >= 1, got %d", key, Pinned, reads)
	}
	e := &entry{key: key, box: b, reads: reads, order: r.next}
	r.next++
	r.entries = append(r.entries, e)
	r.stacks[key] = append(r.stacks[key], e)
	return nil
}

// Fetch returns the newest box stored under key and consumes one read.
// Pinned entries are returned without consuming anything. An entry whose
// reads have hit zero stays in place until the next Sweep, and fetching it
// fails with ErrExhausted.
func (r *Registry) Fetch(key string) (*box.Box, error) {
	stack := r.stacks[key]
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingEntry, key)
	}
	e := stack[len(stack)-1]
	if e.reads == Pinned {
		return e.box, nil
	}
	if e.reads == 0 {
		return nil, fmt.Errorf("%w: %q", ErrExhausted, key)
	}
	e.reads--
	return e.box, nil
}

// Has reports whether any entry exists under key.
func (r *Registry) Has(key string) bool {
	return len(r.stacks[key]) > 0
}

// Reads returns the remaining read count of the newest entry under key, or
// an error if none exists.
func (r *Registry) Reads(key string) (int, error) {
	stack := r.stacks[key]
	if len(stack) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrMissingEntry, key)
	}
	return stack[len(stack)-1].reads, nil
}

// Remove releases the newest entry under key and drops it from the registry.
func (r *Registry) Remove(key string) error {
	stack := r.stacks[key]
	if len(stack) == 0 {
		return fmt.Errorf("%w: %q", ErrMissingEntry, key)
	}
	e := stack[len(stack)-1]
	r.pop(e)
	e.box.Release()
	return nil
}

// Sweep releases every entry whose reads have reached zero. The scheduler
// calls this after each filter's turn so inputs outlive the execute call
// that read them, but nothing more.
func (r *Registry) Sweep() {
	for i := 0; i < len(r.entries); {
		e := r.entries[i]
		if e.reads == 0 {
			r.pop(e)
			e.box.Release()
			continue // pop shifted the slice, revisit index i
		}
		i++
	}
}

// Keys returns the keys of all live entries in insertion order. Shadowed
// entries contribute their key once per entry.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Orphans returns the keys of non-pinned entries that still have reads
// left. After a successful execute these are results nobody consumed.
func (r *Registry) Orphans() []string {
	var keys []string
	for _, e := range r.entries {
		if e.reads != Pinned && e.reads > 0 {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Reset releases all entries in reverse insertion order, so entries that
// borrow from earlier entries are freed first.
func (r *Registry) Reset() {
	for i := len(r.entries) - 1; i >= 0; i-- {
		r.entries[i].box.Release()
	}
	r.entries = nil
	r.stacks = make(map[string][]*entry)
	r.next = 0
}

// pop unlinks e from the insertion list and from its key stack.
func (r *Registry) pop(e *entry) {
	for i, other := range r.entries {
		if other == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	stack := r.stacks[e.key]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == e {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(r.stacks, e.key)
	} else {
		r.stacks[e.key] = stack
	}
}
