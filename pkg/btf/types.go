package btf

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrBadHeader means the blob does not start with a valid BTF header
	// or contains a malformed type record.
	ErrBadHeader = errors.New("bad BTF header")
	// ErrTruncated means the header declares more data than the blob holds.
	ErrTruncated = errors.New("truncated BTF blob")
	// ErrValueOutOfRange means an enum value does not fit into 32 bits.
	ErrValueOutOfRange = errors.New("enum value out of range")
	// ErrNotFound means no usable type with the requested name exists.
	ErrNotFound = errors.New("type not found")
)

type Kind uint8

const (
	KindOther Kind = iota
	KindEnum
)

// Member is a single enum constant. Values are always carried as 64 bits:
// BTF_KIND_ENUM values are zero-extended, BTF_KIND_ENUM64 values are taken
// as declared.
type Member struct {
	Name  string
	Value uint64
}

// Value32 narrows the member value to the 32-bit space drop reason codes
// live in.
func (m Member) Value32() (uint32, error) {
	if m.Value > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s = %#x", ErrValueOutOfRange, m.Name, m.Value)
	}
	return uint32(m.Value), nil
}

// Type is one record of the type section. Only enums carry members; every
// other BTF kind is kept as KindOther so type ids still line up with the
// blob's indexing.
type Type struct {
	ID      uint32
	Kind    Kind
	Name    string
	Members []Member
}
