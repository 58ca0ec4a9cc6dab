package btf

import "fmt"

// Types returns the parsed records in id order.
func (g *Graph) Types() []Type {
	return g.types
}

// TypeByID returns the record for a type id, if the blob declares one.
func (g *Graph) TypeByID(id uint32) (Type, bool) {
	if id < 1 || uint64(id) > uint64(len(g.types)) {
		return Type{}, false
	}
	return g.types[id-1], true
}

// FindEnum returns the members of the enum named name, in declaration
// order. Anonymous enums never match. Several same-named enums are fine as
// long as they declare the same members; conflicting definitions mean the
// blob's schema cannot be trusted and are rejected instead of picking one.
func (g *Graph) FindEnum(name string) ([]Member, error) {
	var found []Member
	for _, t := range g.types {
		if t.Kind != KindEnum || t.Name != name {
			continue
		}
		if found == nil {
			found = t.Members
			continue
		}
		if !sameMembers(found, t.Members) {
			return nil, fmt.Errorf("%w: several conflicting definitions of enum %s", ErrNotFound, name)
		}
	}

	if found == nil {
		return nil, fmt.Errorf("%w: enum %s", ErrNotFound, name)
	}

	return found, nil
}

func sameMembers(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
