package codec

// Bytes is the codec for []byte values. Both directions copy, so encoded
// bytes never alias the caller's slice.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return clone(b), nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return clone(b), nil }

// String is a trivial codec for Go strings (assumed UTF-8, not validated).
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
