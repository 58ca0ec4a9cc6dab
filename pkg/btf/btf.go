// Package btf parses kernel BTF blobs just deep enough to recover enum
// definitions. It is not a general BTF library: every non-enum kind is
// decoded only as far as needed to keep type ids aligned with the blob.
package btf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

const (
	btfMagic   = 0xeB9F
	btfVersion = 1
	headerLen  = 24
)

// Wire kinds, include/uapi/linux/btf.h.
const (
	kindInt       = 1
	kindPtr       = 2
	kindArray     = 3
	kindStruct    = 4
	kindUnion     = 5
	kindEnum      = 6
	kindFwd       = 7
	kindTypedef   = 8
	kindVolatile  = 9
	kindConst     = 10
	kindRestrict  = 11
	kindFunc      = 12
	kindFuncProto = 13
	kindVar       = 14
	kindDatasec   = 15
	kindFloat     = 16
	kindDeclTag   = 17
	kindTypeTag   = 18
	kindEnum64    = 19
)

type header struct {
	Magic   uint16
	Version uint8
	Flags   uint8
	HdrLen  uint32
	TypeOff uint32
	TypeLen uint32
	StrOff  uint32
	StrLen  uint32
}

// Graph holds the parsed type section, indexable by type id.
type Graph struct {
	types []Type
}

// LoadFile reads and parses a BTF blob from disk. The running kernel
// exposes its own at /sys/kernel/btf/vmlinux.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read BTF blob: %w", err)
	}

	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return g, nil
}

// Parse decodes a raw BTF blob into a Graph. Type ids are 1-based
// positions in the type section, matching the format's convention.
func Parse(data []byte) (*Graph, error) {
	hdr, order, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	typeStart := uint64(hdr.HdrLen) + uint64(hdr.TypeOff)
	typeEnd := typeStart + uint64(hdr.TypeLen)
	if typeEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: type section [%d:%d] beyond %d bytes",
			ErrTruncated, typeStart, typeEnd, len(data))
	}

	strStart := uint64(hdr.HdrLen) + uint64(hdr.StrOff)
	strEnd := strStart + uint64(hdr.StrLen)
	if strEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: string section [%d:%d] beyond %d bytes",
			ErrTruncated, strStart, strEnd, len(data))
	}

	strings := data[strStart:strEnd]
	if len(strings) == 0 || strings[0] != 0 {
		return nil, fmt.Errorf("%w: string section must start with an empty string", ErrBadHeader)
	}

	g := &Graph{}
	cur := cursor{data: data[typeStart:typeEnd], order: order}

	// Id 0 is reserved for void and has no record in the section.
	for id := uint32(1); cur.left() > 0; id++ {
		nameOff, err := cur.u32()
		if err != nil {
			return nil, err
		}
		info, err := cur.u32()
		if err != nil {
			return nil, err
		}
		if _, err := cur.u32(); err != nil { // size or referenced type id
			return nil, err
		}

		kind := info >> 24 & 0x1f
		vlen := info & 0xffff

		name, err := lookupString(strings, nameOff)
		if err != nil {
			return nil, err
		}

		t := Type{ID: id, Kind: KindOther, Name: name}

		switch kind {
		case kindEnum:
			t.Kind = KindEnum
			t.Members = make([]Member, 0, vlen)
			for i := uint32(0); i < vlen; i++ {
				mOff, err := cur.u32()
				if err != nil {
					return nil, err
				}
				val, err := cur.u32()
				if err != nil {
					return nil, err
				}
				mName, err := lookupString(strings, mOff)
				if err != nil {
					return nil, err
				}
				t.Members = append(t.Members, Member{Name: mName, Value: uint64(val)})
			}

		case kindEnum64:
			t.Kind = KindEnum
			t.Members = make([]Member, 0, vlen)
			for i := uint32(0); i < vlen; i++ {
				mOff, err := cur.u32()
				if err != nil {
					return nil, err
				}
				lo, err := cur.u32()
				if err != nil {
					return nil, err
				}
				hi, err := cur.u32()
				if err != nil {
					return nil, err
				}
				mName, err := lookupString(strings, mOff)
				if err != nil {
					return nil, err
				}
				t.Members = append(t.Members, Member{Name: mName, Value: uint64(hi)<<32 | uint64(lo)})
			}

		default:
			extra, err := trailingSize(kind, vlen)
			if err != nil {
				return nil, err
			}
			if err := cur.skip(extra); err != nil {
				return nil, err
			}
		}

		g.types = append(g.types, t)
	}

	return g, nil
}

func parseHeader(data []byte) (*header, binary.ByteOrder, error) {
	if len(data) < headerLen {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than the fixed header", ErrTruncated, len(data))
	}

	// The magic doubles as a byte order probe.
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint16(data) == btfMagic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint16(data) == btfMagic:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: magic %#04x", ErrBadHeader, binary.LittleEndian.Uint16(data))
	}

	hdr := &header{}
	if err := binary.Read(bytes.NewReader(data[:headerLen]), order, hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrBadHeader, err)
	}

	if hdr.Version != btfVersion {
		return nil, nil, fmt.Errorf("%w: version %d", ErrBadHeader, hdr.Version)
	}
	if hdr.HdrLen < headerLen {
		return nil, nil, fmt.Errorf("%w: header length %d", ErrBadHeader, hdr.HdrLen)
	}
	if uint64(hdr.HdrLen) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: header length %d beyond %d bytes", ErrTruncated, hdr.HdrLen, len(data))
	}

	return hdr, order, nil
}

// trailingSize returns the number of bytes following the common record for
// kinds this package does not model. Getting these wrong would desync every
// type id after the record.
func trailingSize(kind, vlen uint32) (uint32, error) {
	switch kind {
	case kindInt, kindVar, kindDeclTag:
		return 4, nil
	case kindArray:
		return 12, nil
	case kindStruct, kindUnion, kindDatasec:
		return vlen * 12, nil
	case kindFuncProto:
		return vlen * 8, nil
	case kindPtr, kindFwd, kindTypedef, kindVolatile, kindConst,
		kindRestrict, kindFunc, kindFloat, kindTypeTag:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown type kind %d", ErrBadHeader, kind)
	}
}

func lookupString(strings []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(strings)) {
		return "", fmt.Errorf("%w: string offset %d beyond table of %d bytes",
			ErrBadHeader, off, len(strings))
	}
	end := bytes.IndexByte(strings[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrBadHeader, off)
	}
	return string(strings[off : int(off)+end]), nil
}

type cursor struct {
	data  []byte
	order binary.ByteOrder
	off   int
}

func (c *cursor) left() int {
	return len(c.data) - c.off
}

func (c *cursor) u32() (uint32, error) {
	if c.left() < 4 {
		return 0, fmt.Errorf("%w: type section ends mid-record at offset %d", ErrTruncated, c.off)
	}
	v := c.order.Uint32(c.data[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) skip(n uint32) error {
	if uint64(c.left()) < uint64(n) {
		return fmt.Errorf("%w: type section ends mid-record at offset %d", ErrTruncated, c.off)
	}
	c.off += int(n)
	return nil
}
