package scenario

// SlotRef identifies the occupant of one slot (geometry, physical object
// or service) of a scenario join row: either a scenario-local row or a
// pointer into the public dataset, never both. An empty ref is legal only
// for the service slot.
type SlotRef struct {
	LocalID  *int64
	PublicID *int64
}

// IsScenario reports whether the slot resolves to a scenario-local row.
func (s SlotRef) IsScenario() bool {
	return s.LocalID != nil
}

// Empty reports whether neither side is set.
func (s SlotRef) Empty() bool {
	return s.LocalID == nil && s.PublicID == nil
}

// Valid reports whether at most one side is set.
func (s SlotRef) Valid() bool {
	return s.LocalID == nil || s.PublicID == nil
}

// ID returns the resolved identifier, preferring the local side.
func (s SlotRef) ID() int64 {
	if s.LocalID != nil {
		return *s.LocalID
	}
	if s.PublicID != nil {
		return *s.PublicID
	}
	return 0
}

// pick resolves a pair of (scenario-local, public) attribute values into the
// one matching the slot's provenance. It centralizes the "which column is
// live" decision so it is made exactly once per slot instead of at every
// call site.
func pick[T any](s SlotRef, local, public T) T {
	if s.IsScenario() {
		return local
	}
	return public
}
