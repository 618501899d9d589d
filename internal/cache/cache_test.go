package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	var c Cache[[]byte] = NewTTLCache[[]byte](time.Minute, time.Minute, 0)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache returned a value")
	}
	c.Set("a", []byte("png"))
	got, ok := c.Get("a")
	if !ok || string(got) != "png" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("Size = %d", c.Size())
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry still present")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[int](30*time.Millisecond, time.Hour, 0)
	c.Set("k", 1)
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
}

func TestTTLCacheFlush(t *testing.T) {
	c := NewTTLCache[string](time.Minute, 0, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Flush()
	if c.Size() != 0 {
		t.Fatalf("Size after Flush = %d", c.Size())
	}
}

func TestTTLCacheMaxEntries(t *testing.T) {
	c := NewTTLCache[int](time.Minute, time.Hour, 3)
	for i, k := range []string{"a", "b", "c"} {
		c.Set(k, i)
		time.Sleep(2 * time.Millisecond)
	}

	c.Set("a", 10)
	if c.Size() != 3 {
		t.Fatalf("overwriting a key must not evict, Size = %d", c.Size())
	}
	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	c.Set("d", 3)
	if c.Size() != 3 {
		t.Fatalf("Size = %d, want 3", c.Size())
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("oldest entry b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("entry %s missing", k)
		}
	}
}

func TestTTLCacheBoundUnderLoad(t *testing.T) {
	c := NewTTLCache[int](time.Minute, time.Hour, 16)
	for i := 0; i < 500; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	if c.Size() > 16 {
		t.Fatalf("Size = %d, want at most 16", c.Size())
	}
}
