package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSearchCachePutGetRoundTrip(t *testing.T) {
	c := newSearchCache()
	resp := SearchResponse{TotalCount: 3, Results: []SearchResultItem{{ID: "chunk-1"}}}

	_, ok := c.Get("q")
	assert.False(t, ok, "empty cache must miss")

	c.Put("q", resp)
	got, ok := c.Get("q")
	assert.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestSearchCacheExpiresEntries(t *testing.T) {
	c := newSearchCache()
	c.entries["q"] = searchCacheEntry{
		response:  SearchResponse{TotalCount: 1},
		expiresAt: time.Now().Add(-time.Second),
	}

	_, ok := c.Get("q")
	assert.False(t, ok, "an entry past its TTL must not be returned")
}

func TestSearchCacheEvictExpiredKeepsLiveEntries(t *testing.T) {
	c := newSearchCache()
	c.entries["stale"] = searchCacheEntry{expiresAt: time.Now().Add(-time.Minute)}
	c.entries["fresh"] = searchCacheEntry{expiresAt: time.Now().Add(time.Minute)}

	c.evictExpired()

	_, staleOK := c.entries["stale"]
	_, freshOK := c.entries["fresh"]
	assert.False(t, staleOK)
	assert.True(t, freshOK)
}
