package chart

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"bilancio/internal/cache"
)

// DefaultCacheEntries caps the image cache when no limit is given.
const DefaultCacheEntries = 128

// Renderer renders PNG charts and keeps recent results, keyed by chart
// content and size. Safe for concurrent use.
type Renderer struct {
	size  Size
	cache cache.Cache[[]byte]
}

// NewRenderer returns a renderer for the given default size. A ttl of zero
// disables caching; otherwise at most maxEntries images are kept.
func NewRenderer(size Size, ttl time.Duration, maxEntries int) (*Renderer, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{size: size}
	if ttl > 0 {
		if maxEntries <= 0 {
			maxEntries = DefaultCacheEntries
		}
		r.cache = cache.NewTTLCache[[]byte](ttl, 2*ttl, maxEntries)
	}
	return r, nil
}

// Size returns the default render size.
func (r *Renderer) Size() Size { return r.size }

// CachedEntries returns the number of images held in the cache.
func (r *Renderer) CachedEntries() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Size()
}

// PNG renders cfg at the default size. cached reports whether the image
// came from the cache.
func (r *Renderer) PNG(cfg Config) (data []byte, cached bool, err error) {
	return r.PNGSized(cfg, r.size)
}

// PNGSized renders cfg at an explicit size.
func (r *Renderer) PNGSized(cfg Config, size Size) (data []byte, cached bool, err error) {
	key, err := cacheKey(cfg, size)
	if err != nil {
		return nil, false, err
	}
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			return data, true, nil
		}
	}

	var buf bytes.Buffer
	if err := Render(&buf, cfg, size); err != nil {
		return nil, false, err
	}
	data = buf.Bytes()
	if r.cache != nil {
		r.cache.Set(key, data)
	}
	return data, false, nil
}

func cacheKey(cfg Config, size Size) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("hash chart: %w", err)
	}
	sum := sha256.Sum256(append(raw, fmt.Sprintf("|%dx%d", size.Width, size.Height)...))
	return hex.EncodeToString(sum[:]), nil
}
