package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type profile struct {
	ID    int               `json:"id"`
	Name  string            `json:"name"`
	Tags  map[string]string `json:"tags,omitempty"`
	Since time.Time         `json:"since"`
}

func sample() profile {
	return profile{
		ID:    7,
		Name:  "Ada",
		Tags:  map[string]string{"b": "2", "a": "1", "c": "3"},
		Since: time.Date(2024, 2, 29, 13, 14, 15, 123456789, time.UTC),
	}
}

func same(a, b profile) bool {
	if a.ID != b.ID || a.Name != b.Name || !a.Since.Equal(b.Since) || len(a.Tags) != len(b.Tags) {
		return false
	}
	for k, v := range a.Tags {
		if b.Tags[k] != v {
			return false
		}
	}
	return true
}

func TestStructCodecsRoundTrip(t *testing.T) {
	codecs := map[string]Codec[profile]{
		"json":    JSON[profile]{},
		"cbor":    MustCBOR[profile](false),
		"cborDet": MustCBOR[profile](true),
		"msgpack": Msgpack[profile]{},
	}
	for name, c := range codecs {
		b, err := c.Encode(sample())
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if !same(got, sample()) {
			t.Fatalf("%s mismatch: got %+v want %+v", name, got, sample())
		}
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[profile](true)
	first, err := c.Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, err := c.Encode(sample())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic CBOR produced different bytes on run %d", i)
		}
	}
}

func TestMsgpackHonorsJSONTags(t *testing.T) {
	b, err := Msgpack[profile]{}.Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("name")) || bytes.Contains(b, []byte("Name")) {
		t.Fatalf("expected json tag names in msgpack output: %q", b)
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.GetValue() != "hello" {
		t.Fatalf("got %q", got.GetValue())
	}
}

func TestBytesCodecCopies(t *testing.T) {
	in := []byte("abc")
	enc, _ := Bytes{}.Encode(in)
	in[0] = 'X'
	if enc[0] != 'a' {
		t.Fatalf("Encode must not alias its input")
	}
	dec, _ := Bytes{}.Decode(enc)
	enc[1] = 'Y'
	if dec[1] != 'b' {
		t.Fatalf("Decode must not alias its input")
	}
	if out, _ := (Bytes{}).Encode(nil); out != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestStringCodec(t *testing.T) {
	b, _ := String{}.Encode("héllo")
	s, _ := String{}.Decode(b)
	if s != "héllo" {
		t.Fatalf("got %q", s)
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 3}

	if _, err := c.Encode("abcd"); err != nil {
		t.Fatalf("4 bytes should pass MaxEncode=4: %v", err)
	}
	if _, err := c.Encode("abcde"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on encode, got %v", err)
	}
	if _, err := c.Decode([]byte("abcd")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on decode, got %v", err)
	}
	if s, err := c.Decode([]byte("abc")); err != nil || s != "abc" {
		t.Fatalf("decode within bound: %q %v", s, err)
	}

	open := LimitCodec[string]{Inner: String{}}
	if _, err := open.Encode(string(make([]byte, 1<<16))); err != nil {
		t.Fatalf("zero bounds disable limits: %v", err)
	}
}
