// Package scope provides the evolving name→value binding map shared by one
// evaluation pass. A scope is rebuilt from scratch on every pass and has no
// identity beyond it; insertion order is preserved so downstream consumers
// see rule outputs in evaluation order.
package scope

// Scope maps names to typed values (float64, bool, string, or nil for a
// missing input) while remembering the order names were first bound in.
type Scope struct {
	entries map[string]any
	names   []string
}

// New returns an empty scope.
func New() *Scope {
	return &Scope{entries: make(map[string]any)}
}

// Set binds name to value. The first binding of a name fixes its position
// in the iteration order; rebinding updates the value in place.
func (s *Scope) Set(name string, value any) {
	if _, ok := s.entries[name]; !ok {
		s.names = append(s.names, name)
	}
	s.entries[name] = value
}

// Get returns the value bound to name and whether the name is bound at all.
// A bound nil (a missing input) returns (nil, true).
func (s *Scope) Get(name string) (any, bool) {
	v, ok := s.entries[name]
	return v, ok
}

// Names returns all bound names in insertion order. The returned slice is
// shared; callers must not mutate it.
func (s *Scope) Names() []string {
	return s.names
}

// Len returns the number of bound names.
func (s *Scope) Len() int {
	return len(s.names)
}
