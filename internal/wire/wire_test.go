package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func mustEncodeElement(t *testing.T, e Element) []byte {
	t.Helper()
	b, err := EncodeElement(e)
	if err != nil {
		t.Fatalf("EncodeElement error: %v", err)
	}
	return b
}

func TestElementRoundTrip(t *testing.T) {
	cases := []Element{
		{Key: "k"},
		{Key: "user:1", Version: 7, Hits: 3, TTL: int64(math.MaxInt64), TTI: 5, Created: -1, Accessed: 2, Updated: 3, Payload: []byte("hello")},
		{Key: strings.Repeat("x", 0xFFFF), Version: math.MaxUint64, Payload: []byte{0, 1, 2}},
	}
	for _, tc := range cases {
		got, err := DecodeElement(mustEncodeElement(t, tc))
		if err != nil {
			t.Fatalf("DecodeElement error: %v", err)
		}
		if got.Key != tc.Key || got.Version != tc.Version || got.Hits != tc.Hits ||
			got.TTL != tc.TTL || got.TTI != tc.TTI || got.Created != tc.Created ||
			got.Accessed != tc.Accessed || got.Updated != tc.Updated {
			t.Fatalf("element mismatch: got=%+v want=%+v", got, tc)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestElementRejectsBadKeys(t *testing.T) {
	if _, err := EncodeElement(Element{}); err != ErrKeyLength {
		t.Fatalf("empty key: got %v want ErrKeyLength", err)
	}
	if _, err := EncodeElement(Element{Key: strings.Repeat("x", 0x10000)}); err != ErrKeyLength {
		t.Fatalf("oversized key: got %v want ErrKeyLength", err)
	}
}

func TestElementPayloadIsCopied(t *testing.T) {
	enc := mustEncodeElement(t, Element{Key: "k", Payload: []byte("Z")})
	got, err := DecodeElement(enc)
	if err != nil {
		t.Fatal(err)
	}
	got.Payload[0] = 'Q'
	again, err := DecodeElement(enc)
	if err != nil {
		t.Fatal(err)
	}
	if again.Payload[0] != 'Z' {
		t.Fatalf("decoded payload must not alias the frame")
	}
}

func TestElementCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncodeElement(t, Element{Key: "abc", Payload: []byte("xyz")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeElement(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeElement(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindOp
	if _, err := DecodeElement(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen sits right after magic(4)+ver+kind+7*u64+keyLen(2)+key(3)
	off := 6 + 7*8 + 2 + 3
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[off:off+4], uint32(len("xyz")+1))
	if _, err := DecodeElement(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	zeroKey := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(zeroKey[6+7*8:], 0)
	if _, err := DecodeElement(zeroKey); err == nil {
		t.Fatalf("expected error on zero key length")
	}

	if _, err := DecodeElement(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := DecodeElement(append(append([]byte(nil), enc...), 0xDE, 0xAD)); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
	for i := 0; i < len(enc); i++ {
		if _, err := DecodeElement(enc[:i]); err == nil {
			t.Fatalf("expected error on prefix of length %d", i)
		}
	}
}

func TestOpRoundTrip(t *testing.T) {
	cases := []Op{
		{Kind: 1, Key: "a", Created: 42, Payload: []byte("v")},
		{Kind: 2, Key: "gone", Created: -5},
	}
	for _, tc := range cases {
		enc, err := EncodeOp(tc)
		if err != nil {
			t.Fatalf("EncodeOp error: %v", err)
		}
		got, err := DecodeOp(enc)
		if err != nil {
			t.Fatalf("DecodeOp error: %v", err)
		}
		if got.Kind != tc.Kind || got.Key != tc.Key || got.Created != tc.Created || !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("op mismatch: got=%+v want=%+v", got, tc)
		}
	}
}

func TestFramesAreNotInterchangeable(t *testing.T) {
	op, err := EncodeOp(Op{Kind: 1, Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeElement(op); err != ErrCorrupt {
		t.Fatalf("op frame decoded as element: %v", err)
	}
	el := mustEncodeElement(t, Element{Key: "k"})
	if _, err := DecodeOp(el); err != ErrCorrupt {
		t.Fatalf("element frame decoded as op: %v", err)
	}
}
