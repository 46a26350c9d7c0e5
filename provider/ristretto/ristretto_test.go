package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, Metrics: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	want := []byte("frame-bytes")
	if ok, err := p.Set(ctx, "k", want, 0, 0); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	p.Wait()

	got, ok, err := p.Get(ctx, "k")
	if !ok || err != nil || !bytes.Equal(got, want) {
		t.Fatalf("Get=%q,%v,%v", got, ok, err)
	}
	if p.Metrics() == nil {
		t.Fatalf("metrics requested but nil")
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{NumCounters: 10}); err == nil {
		t.Fatalf("expected error")
	}
}
