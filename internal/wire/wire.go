package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version     byte = 1
	kindRecord  byte = 1
	kindPointer byte = 2
)

var (
	ErrCorrupt = errors.New("metacache: corrupt record")
	magic4     = [...]byte{'M', 'C', 'K', 'V'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Record: magic(4) | ver(1) | kind(1=record) | codec(1) | expires(i64 be, unix s) | vlen(u32 be) | body(vlen)
//
// codec identifies how body was encoded so a store can change codecs without
// misreading older rows.
func EncodeRecord(codec byte, expires int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + 8 + 4 + len(body))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)
	buf.WriteByte(codec)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expires))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(body)))
	buf.Write(u4[:])

	buf.Write(body)
	return buf.Bytes()
}

// DecodeRecord returns body as a subslice of b (zero-copy).
func DecodeRecord(b []byte) (codec byte, expires int64, body []byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return 0, 0, nil, ErrCorrupt
	}

	off := 6
	codec = b[off]
	off++

	expires = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // no short reads, no trailing bytes
		return 0, 0, nil, ErrCorrupt
	}

	return codec, expires, b[off : off+vlen], nil
}

// Pointer: magic(4) | ver(1) | kind(2=pointer) | idLen(u16 be) | id(idLen)
//
// A pointer is stored under an alias key and names the primary id it resolves to.
func EncodePointer(id string) ([]byte, error) {
	if l := len(id); l == 0 || l > 0xFFFF {
		return nil, errors.New("metacache: invalid pointer id length")
	}
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(id))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindPointer)

	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], uint16(len(id)))
	buf.Write(u2[:])
	buf.WriteString(id)

	return buf.Bytes(), nil
}

func DecodePointer(b []byte) (string, error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindPointer {
		return "", ErrCorrupt
	}
	idLen := int(binary.BigEndian.Uint16(b[6:8]))
	if idLen == 0 || idLen != len(b)-hdr {
		return "", ErrCorrupt
	}
	return string(b[hdr:]), nil
}
