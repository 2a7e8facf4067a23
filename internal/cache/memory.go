package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/joeblew999/plat-patch/internal/patch"
)

// Memory is an in-process LRU with a fixed TTL.
type Memory struct {
	lru *expirable.LRU[string, patch.Summary]
}

// NewMemory creates an LRU holding at most capacity summaries for ttl.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{lru: expirable.NewLRU[string, patch.Summary](capacity, nil, ttl)}
}

func (c *Memory) Get(_ context.Context, key string) (patch.Summary, bool) {
	return c.lru.Get(key)
}

func (c *Memory) Set(_ context.Context, key string, s patch.Summary) {
	c.lru.Add(key, s)
}

// Len returns the number of stored entries.
func (c *Memory) Len() int {
	return c.lru.Len()
}
