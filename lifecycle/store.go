package lifecycle

import (
	"sort"

	"github.com/bobuhiro11/vmsr/topology"
)

// Entry is one captured register value.
type Entry struct {
	Name   string
	Target topology.Target
	Value  uint64
}

type storeKey struct {
	name   string
	target topology.Target
}

// Store holds the values captured by one save. It is not safe for
// concurrent use; the Controller serializes access to it.
type Store struct {
	values map[storeKey]uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[storeKey]uint64)}
}

// Put records value for a register on a target.
func (s *Store) Put(name string, tg topology.Target, value uint64) {
	s.values[storeKey{name, tg}] = value
}

// Get returns the captured value, or false if there is none.
func (s *Store) Get(name string, tg topology.Target) (uint64, bool) {
	v, ok := s.values[storeKey{name, tg}]

	return v, ok
}

// Clear drops every entry.
func (s *Store) Clear() {
	clear(s.values)
}

// Len is the number of entries.
func (s *Store) Len() int {
	return len(s.values)
}

// Entries returns every entry ordered by register name, then thread.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, Entry{Name: k.name, Target: k.target, Value: v})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		return out[i].Target.Thread < out[j].Target.Thread
	})

	return out
}
