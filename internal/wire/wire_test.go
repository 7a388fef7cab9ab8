package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func mustDecodeRecord(t *testing.T, b []byte) (byte, int64, []byte) {
	t.Helper()
	codec, exp, body, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord error: %v", err)
	}
	return codec, exp, body
}

func TestRecordRoundTrip(t *testing.T) {
	cases := []struct {
		codec   byte
		expires int64
		body    []byte
	}{
		{0, 0, nil},
		{1, 1717243200, []byte("hello")},
		{2, math.MaxInt64, []byte{0, 1, 2, 3, 4}},
		{3, -1, []byte("before epoch")},
	}
	for _, tc := range cases {
		enc := EncodeRecord(tc.codec, tc.expires, tc.body)
		codec, exp, body := mustDecodeRecord(t, enc)
		if codec != tc.codec || exp != tc.expires {
			t.Fatalf("header mismatch: got (%d,%d) want (%d,%d)", codec, exp, tc.codec, tc.expires)
		}
		if !bytes.Equal(body, tc.body) {
			t.Fatalf("body mismatch: got %x want %x", body, tc.body)
		}
	}
}

func TestRecordRejectsTrailingBytes(t *testing.T) {
	enc := EncodeRecord(1, 7, []byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, _, err := DecodeRecord(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRecordCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeRecord(1, 1, []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, _, err := DecodeRecord(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, _, err := DecodeRecord(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// a pointer is not a record
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindPointer
	if _, _, _, err := DecodeRecord(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen is at offset 15..18 (4 magic +1 ver +1 kind +1 codec +8 expires)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[15:19], uint32(len("abc")+1))
	if _, _, _, err := DecodeRecord(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	trunc := enc[:len(enc)-1]
	if _, _, _, err := DecodeRecord(trunc); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestRecordZeroCopyBody(t *testing.T) {
	enc := EncodeRecord(1, 1, []byte("Z"))
	_, _, body := mustDecodeRecord(t, enc)
	// mutate body slice. should mutate underlying enc bytes (zero-copy)
	body[0] = 'Q'
	_, _, body2 := mustDecodeRecord(t, enc)
	if body2[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}

func TestPointerRoundTrip(t *testing.T) {
	for _, id := range []string{"a", "AABBccdd", strings.Repeat("b", 0xFFFF)} {
		enc, err := EncodePointer(id)
		if err != nil {
			t.Fatalf("EncodePointer: %v", err)
		}
		got, err := DecodePointer(enc)
		if err != nil || got != id {
			t.Fatalf("DecodePointer: got %q err %v", got, err)
		}
	}
}

func TestPointerValidation(t *testing.T) {
	if _, err := EncodePointer(""); err == nil {
		t.Fatalf("expected error on empty id")
	}
	if _, err := EncodePointer(strings.Repeat("a", 0x10000)); err == nil {
		t.Fatalf("expected error on id length > 0xFFFF")
	}

	enc, _ := EncodePointer("abc")
	trunc := enc[:len(enc)-1]
	if _, err := DecodePointer(trunc); err == nil {
		t.Fatalf("expected error on truncated pointer")
	}
	if _, err := DecodePointer(append(append([]byte(nil), enc...), 'x')); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
	rec := EncodeRecord(1, 1, []byte("abc"))
	if _, err := DecodePointer(rec); err == nil {
		t.Fatalf("a record is not a pointer")
	}
}
