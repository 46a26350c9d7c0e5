package writebehind

import (
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/writebehind/codec"
	"github.com/unkn0wn-root/writebehind/internal/wire"
)

type order struct {
	ID    string   `json:"id"`
	Items []string `json:"items"`
}

func TestOperationHandoffRoundTrip(t *testing.T) {
	c := codec.JSON[order]{}
	created := time.Now().Add(-time.Minute)

	in := Operation[order]{Kind: KindWrite, Key: "order:7", Value: order{ID: "7", Items: []string{"a", "b"}}, CreatedAt: created}
	b, err := EncodeOperation[order](c, in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeOperation[order](c, b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != KindWrite || out.Key != in.Key || !out.CreatedAt.Equal(created) ||
		out.Value.ID != "7" || len(out.Value.Items) != 2 {
		t.Fatalf("got %+v want %+v", out, in)
	}

	del, err := EncodeOperation[order](c, DeleteOp[order]("order:8"))
	if err != nil {
		t.Fatal(err)
	}
	out, err = DecodeOperation[order](c, del)
	if err != nil || out.Kind != KindDelete || out.Key != "order:8" || out.Value.ID != "" {
		t.Fatalf("delete round trip: %+v %v", out, err)
	}
}

func TestOperationHandoffRejectsBadInput(t *testing.T) {
	c := codec.String{}
	if _, err := EncodeOperation[string](c, Operation[string]{Kind: KindWrite}); err != ErrInvalidOperation {
		t.Fatalf("empty key: %v", err)
	}
	if _, err := DecodeOperation[string](c, []byte("junk")); !errors.Is(err, wire.ErrCorrupt) {
		t.Fatalf("junk: %v", err)
	}
	unknown, err := wire.EncodeOp(wire.Op{Kind: 9, Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeOperation[string](c, unknown); !errors.Is(err, wire.ErrCorrupt) {
		t.Fatalf("unknown kind: %v", err)
	}
}
