// Package ristretto backs a writebehind.Cache with dgraph-io/ristretto.
// Ristretto admits writes asynchronously and may refuse them under
// pressure; Set reports a refusal as ok=false.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/writebehind/provider"
)

type Provider struct {
	c *rc.Cache
}

var _ provider.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64 // ~10x the expected entry count
	MaxCost     int64 // in bytes when cost is left to the provider
	BufferItems int64 // 64 is the ristretto recommendation
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto provider: NumCounters, MaxCost and BufferItems must be positive")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set uses len(value) as the cost when cost <= 0.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	if ttl < 0 {
		ttl = 0
	}
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (p *Provider) Wait() { p.c.Wait() }

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

func (p *Provider) Close(context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}
