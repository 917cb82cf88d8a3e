package set

// Set of comparable values. The zero value is an empty set ready to use.
// A Set is not safe for concurrent use.
type Set[T comparable] struct {
	values map[T]struct{}
}

// Of creates a set containing the given values once.
func Of[T comparable](values ...T) Set[T] {
	set := Set[T]{values: make(map[T]struct{}, len(values))}

	for _, value := range values {
		set.Add(value)
	}

	return set
}

// Len returns the number of values in the Set.
func (s *Set[T]) Len() int {
	return len(s.values)
}

// Contains returns true iff the value is part of the Set.
func (s *Set[T]) Contains(value T) bool {
	_, ok := s.values[value]
	return ok
}

// Add adds the value to the set. Returns false if it was already present.
func (s *Set[T]) Add(value T) bool {
	if s.Contains(value) {
		return false
	}

	if s.values == nil {
		s.values = map[T]struct{}{}
	}

	s.values[value] = struct{}{}
	return true
}
