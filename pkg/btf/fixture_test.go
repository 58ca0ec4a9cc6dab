package btf

import (
	"bytes"
	"encoding/binary"
)

// blobBuilder assembles BTF blobs at the wire level so tests control every
// byte, including invalid ones.
type blobBuilder struct {
	order binary.ByteOrder
	types bytes.Buffer
	strs  []byte
}

func newBlobBuilder(order binary.ByteOrder) *blobBuilder {
	return &blobBuilder{order: order, strs: []byte{0}}
}

func (b *blobBuilder) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	off := uint32(len(b.strs))
	b.strs = append(b.strs, s...)
	b.strs = append(b.strs, 0)
	return off
}

func (b *blobBuilder) u32(v uint32) {
	binary.Write(&b.types, b.order, v)
}

// record writes one type record of an arbitrary kind with raw trailing
// words.
func (b *blobBuilder) record(name string, kind uint32, vlen int, sizeOrType uint32, extra ...uint32) {
	b.u32(b.intern(name))
	b.u32(kind<<24 | uint32(vlen))
	b.u32(sizeOrType)
	for _, v := range extra {
		b.u32(v)
	}
}

func (b *blobBuilder) enum(name string, members ...Member) {
	b.record(name, kindEnum, len(members), 4)
	for _, m := range members {
		b.u32(b.intern(m.Name))
		b.u32(uint32(m.Value))
	}
}

func (b *blobBuilder) enum64(name string, members ...Member) {
	b.record(name, kindEnum64, len(members), 8)
	for _, m := range members {
		b.u32(b.intern(m.Name))
		b.u32(uint32(m.Value))
		b.u32(uint32(m.Value >> 32))
	}
}

func (b *blobBuilder) bytes() []byte {
	var out bytes.Buffer
	binary.Write(&out, b.order, header{
		Magic:   btfMagic,
		Version: btfVersion,
		HdrLen:  headerLen,
		TypeOff: 0,
		TypeLen: uint32(b.types.Len()),
		StrOff:  uint32(b.types.Len()),
		StrLen:  uint32(len(b.strs)),
	})
	out.Write(b.types.Bytes())
	out.Write(b.strs)
	return out.Bytes()
}
