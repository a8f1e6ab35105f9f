package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(true, time.Hour, 0)
	defer c.Close()

	key, err := CreateCacheKey("markdown", "https://example.com/a", nil)
	require.NoError(t, err)

	c.Set(key, "hello world", map[string]interface{}{"url": "https://example.com/a"})
	entry, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "hello world", entry.Content)
}

func TestGetExpired(t *testing.T) {
	c := New(true, -time.Second, 0)
	defer c.Close()

	c.Set("markdown:abc123", "stale", nil)
	_, ok := c.Get("markdown:abc123")
	assert.False(t, ok)
}

func TestSetNoopWhenDisabled(t *testing.T) {
	c := New(false, time.Hour, 0)
	defer c.Close()

	c.Set("markdown:abc", "x", nil)
	_, ok := c.Get("markdown:abc")
	assert.False(t, ok)
}

func TestMaxKeysEvictsOldest(t *testing.T) {
	c := New(true, time.Hour, 2)
	defer c.Close()

	c.Set("markdown:a", "1", nil)
	c.Set("markdown:b", "2", nil)
	c.Set("markdown:c", "3", nil)

	_, ok := c.Get("markdown:a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("markdown:b")
	assert.True(t, ok)
	_, ok = c.Get("markdown:c")
	assert.True(t, ok)
}

func TestTouchPreventsEviction(t *testing.T) {
	c := New(true, time.Hour, 2)
	defer c.Close()

	c.Set("markdown:a", "1", nil)
	c.Set("markdown:b", "2", nil)
	c.Get("markdown:a") // touch a, making b the least-recently-used
	c.Set("markdown:c", "3", nil)

	_, ok := c.Get("markdown:b")
	assert.False(t, ok, "b should have been evicted instead of a")
	_, ok = c.Get("markdown:a")
	assert.True(t, ok)
}

func TestOnCacheUpdateFiresAfterSet(t *testing.T) {
	c := New(true, time.Hour, 0)
	defer c.Close()

	received := make(chan UpdateEvent, 1)
	unsub := c.OnCacheUpdate(func(ev UpdateEvent) { received <- ev })
	defer unsub()

	key, _ := CreateCacheKey("markdown", "https://example.com/a", nil)
	c.Set(key, "content", nil)

	select {
	case ev := <-received:
		assert.Equal(t, "markdown", ev.Namespace)
		assert.Equal(t, key, ev.CacheKey)
	case <-time.After(time.Second):
		t.Fatal("expected cache update event")
	}
}

func TestOnCacheUpdateUnsubscribe(t *testing.T) {
	c := New(true, time.Hour, 0)
	defer c.Close()

	calls := 0
	unsub := c.OnCacheUpdate(func(ev UpdateEvent) { calls++ })
	unsub()

	c.Set("markdown:a", "x", nil)
	assert.Equal(t, 0, calls)
}

func TestListenerPanicDoesNotPropagate(t *testing.T) {
	c := New(true, time.Hour, 0)
	defer c.Close()

	c.OnCacheUpdate(func(ev UpdateEvent) { panic("boom") })
	assert.NotPanics(t, func() {
		c.Set("markdown:a", "x", nil)
	})
}

func TestCreateCacheKeyVaryDeterminesEquality(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	v2 := map[string]interface{}{"b": 2, "a": 1}

	k1, err := CreateCacheKey("markdown", "https://example.com", v1)
	require.NoError(t, err)
	k2, err := CreateCacheKey("markdown", "https://example.com", v2)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	v3 := map[string]interface{}{"a": 1, "b": 3}
	k3, err := CreateCacheKey("markdown", "https://example.com", v3)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestParseCacheKeyAndResourceUriRoundTrip(t *testing.T) {
	key, err := CreateCacheKey("markdown", "https://example.com/a", map[string]interface{}{"h": "x"})
	require.NoError(t, err)

	parsed, err := ParseCacheKey(key)
	require.NoError(t, err)
	assert.Equal(t, "markdown", parsed.Namespace)
	assert.NotEmpty(t, parsed.URLHash)
	assert.NotEmpty(t, parsed.VaryHash)

	uri, err := ToResourceUri(key)
	require.NoError(t, err)
	assert.Contains(t, uri, "superfetch://cache/markdown/")
}

func TestStableStringifyRejectsCycle(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m
	_, err := StableStringify(m)
	assert.Error(t, err)
}

func TestStableStringifyRejectsExcessiveDepth(t *testing.T) {
	var v interface{} = "leaf"
	for i := 0; i < 25; i++ {
		v = map[string]interface{}{"next": v}
	}
	_, err := StableStringify(v)
	assert.Error(t, err)
}
