package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version     byte = 1
	kindElement byte = 1
	kindOp      byte = 2
)

var (
	ErrCorrupt   = errors.New("writebehind: corrupt frame")
	ErrKeyLength = errors.New("writebehind: key length must be 1..65535 bytes")
	magic4       = [...]byte{'W', 'B', 'S', 'N'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Element is the flat form of a cache entry snapshot. Times are UnixNano,
// durations are nanoseconds.
type Element struct {
	Key      string
	Version  uint64
	Hits     uint64
	TTL      int64
	TTI      int64
	Created  int64
	Accessed int64
	Updated  int64
	Payload  []byte
}

// Element:
//
//	magic(4) | ver(1) | kind(1=element) | version(u64) | hits(u64)
//	ttl(i64) | tti(i64) | created(i64) | accessed(i64) | updated(i64)
//	keyLen(u16) | key | vlen(u32) | payload
//
// All integers big endian.
func EncodeElement(e Element) ([]byte, error) {
	if l := len(e.Key); l == 0 || l > 0xFFFF {
		return nil, ErrKeyLength
	}
	var buf bytes.Buffer
	buf.Grow(6 + 7*8 + 2 + len(e.Key) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindElement)
	for _, v := range [...]uint64{
		e.Version, e.Hits,
		uint64(e.TTL), uint64(e.TTI),
		uint64(e.Created), uint64(e.Accessed), uint64(e.Updated),
	} {
		putU64(&buf, v)
	}
	putKey(&buf, e.Key)
	putPayload(&buf, e.Payload)
	return buf.Bytes(), nil
}

// DecodeElement parses an element frame. The returned payload is a copy and
// never aliases b.
func DecodeElement(b []byte) (Element, error) {
	r, err := open(b, kindElement)
	if err != nil {
		return Element{}, err
	}
	var e Element
	var u [7]uint64
	for i := range u {
		if u[i], err = r.u64(); err != nil {
			return Element{}, err
		}
	}
	e.Version, e.Hits = u[0], u[1]
	e.TTL, e.TTI = int64(u[2]), int64(u[3])
	e.Created, e.Accessed, e.Updated = int64(u[4]), int64(u[5]), int64(u[6])

	if e.Key, err = r.key(); err != nil {
		return Element{}, err
	}
	if e.Payload, err = r.payload(); err != nil {
		return Element{}, err
	}
	if !r.done() {
		return Element{}, ErrCorrupt
	}
	return e, nil
}

// Op is the flat form of a queued operation handed to another node.
type Op struct {
	Kind    byte
	Key     string
	Created int64
	Payload []byte
}

// Op:
//
//	magic(4) | ver(1) | kind(2=op) | opKind(1) | created(i64)
//	keyLen(u16) | key | vlen(u32) | payload
func EncodeOp(o Op) ([]byte, error) {
	if l := len(o.Key); l == 0 || l > 0xFFFF {
		return nil, ErrKeyLength
	}
	var buf bytes.Buffer
	buf.Grow(6 + 1 + 8 + 2 + len(o.Key) + 4 + len(o.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindOp)
	buf.WriteByte(o.Kind)
	putU64(&buf, uint64(o.Created))
	putKey(&buf, o.Key)
	putPayload(&buf, o.Payload)
	return buf.Bytes(), nil
}

// DecodeOp parses an op frame; the payload is copied.
func DecodeOp(b []byte) (Op, error) {
	r, err := open(b, kindOp)
	if err != nil {
		return Op{}, err
	}
	var o Op
	if o.Kind, err = r.u8(); err != nil {
		return Op{}, err
	}
	created, err := r.u64()
	if err != nil {
		return Op{}, err
	}
	o.Created = int64(created)
	if o.Key, err = r.key(); err != nil {
		return Op{}, err
	}
	if o.Payload, err = r.payload(); err != nil {
		return Op{}, err
	}
	if !r.done() {
		return Op{}, ErrCorrupt
	}
	return o, nil
}

func putU64(buf *bytes.Buffer, v uint64) {
	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], v)
	buf.Write(u8[:])
}

func putKey(buf *bytes.Buffer, key string) {
	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], uint16(len(key)))
	buf.Write(u2[:])
	buf.WriteString(key)
}

func putPayload(buf *bytes.Buffer, p []byte) {
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
	buf.Write(u4[:])
	buf.Write(p)
}

// reader walks a frame with overflow-safe bounds checks.
type reader struct {
	b   []byte
	off int
}

func open(b []byte, kind byte) (*reader, error) {
	if len(b) < 6 || !hasMagic(b) || b[4] != version || b[5] != kind {
		return nil, ErrCorrupt
	}
	return &reader{b: b, off: 6}, nil
}

func (r *reader) need(n int) error {
	if n < 0 || n > len(r.b)-r.off {
		return ErrCorrupt
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *reader) key() (string, error) {
	if err := r.need(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(r.b[r.off : r.off+2]))
	r.off += 2
	if n == 0 {
		return "", ErrCorrupt
	}
	if err := r.need(n); err != nil {
		return "", err
	}
	k := string(r.b[r.off : r.off+n])
	r.off += n
	return k, nil
}

func (r *reader) payload() ([]byte, error) {
	if err := r.need(4); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(r.b[r.off : r.off+4]))
	r.off += 4
	if err := r.need(n); err != nil {
		return nil, err
	}
	p := make([]byte, n)
	copy(p, r.b[r.off:r.off+n])
	r.off += n
	return p, nil
}

func (r *reader) done() bool { return r.off == len(r.b) }
