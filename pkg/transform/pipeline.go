package transform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/fetch"
	"github.com/gomcpgo/superfetch/pkg/urlguard"
)

// PipelineParams configures a single ExecuteFetchPipeline call.
type PipelineParams[T any] struct {
	URL           string
	Namespace     string
	CustomHeaders map[string]string
	Retries       int
	Timeout       time.Duration
	MaxRedirects  int
	MaxContentLen int64
	CacheVary     interface{}

	Transform   func(body, normalizedURL string) (T, error)
	Serialize   func(T) (string, error)
	Deserialize func(string) (T, bool, error) // false result means treat as a cache miss
}

// PipelineResult is the outcome of ExecuteFetchPipeline.
type PipelineResult[T any] struct {
	Data      T
	FromCache bool
	URL       string
	FetchedAt time.Time
	CacheKey  string
}

// ExecuteFetchPipeline implements spec.md §4.4's fetch-or-hit sequence:
// normalize, derive a cache key, attempt a cache hit, otherwise fetch with
// retry, apply the caller's transform, and persist the result.
func ExecuteFetchPipeline[T any](ctx context.Context, c *cache.Cache, f *fetch.Fetcher, p PipelineParams[T]) (PipelineResult[T], error) {
	normalized, err := urlguard.ValidateAndNormalizeURL(p.URL)
	if err != nil {
		return PipelineResult[T]{}, err
	}

	cacheKey, err := cache.CreateCacheKey(p.Namespace, normalized, p.CacheVary)
	if err != nil {
		return PipelineResult[T]{}, apperrors.Internal(err)
	}

	if c.IsEnabled() && p.Deserialize != nil {
		if entry, ok := c.Get(cacheKey); ok {
			data, hit, derr := p.Deserialize(entry.Content)
			if derr == nil && hit {
				return PipelineResult[T]{
					Data:      data,
					FromCache: true,
					URL:       normalized,
					FetchedAt: entry.FetchedAt,
					CacheKey:  cacheKey,
				}, nil
			}
		}
	}

	res, err := f.Fetch(ctx, normalized, fetch.Options{
		CustomHeaders:    p.CustomHeaders,
		Timeout:          p.Timeout,
		MaxRedirects:     p.MaxRedirects,
		MaxContentLength: p.MaxContentLen,
		Retries:          p.Retries,
	})
	if err != nil {
		return PipelineResult[T]{}, err
	}

	data, err := p.Transform(res.Body, res.FinalURL)
	if err != nil {
		return PipelineResult[T]{}, apperrors.Internal(err)
	}

	now := time.Now()
	if c.IsEnabled() {
		serialize := p.Serialize
		if serialize == nil {
			serialize = func(v T) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			}
		}
		if serialized, serr := serialize(data); serr == nil && serialized != "" {
			c.Set(cacheKey, serialized, map[string]interface{}{"url": normalized})
		}
	}

	return PipelineResult[T]{
		Data:      data,
		FromCache: false,
		URL:       normalized,
		FetchedAt: now,
		CacheKey:  cacheKey,
	}, nil
}

// InlineResult is the outcome of ApplyInlineContentLimit.
type InlineResult struct {
	Content     string
	ResourceURI string
	Truncated   bool
}

const truncationMarker = "\n\n[... content truncated ...]"

// ApplyInlineContentLimit implements spec.md §4.4's inline-vs-resource
// decision: content at or under the limit is returned inline; over the
// limit with an active cache entry is deferred to a resource read;
// otherwise the content is truncated in place.
func ApplyInlineContentLimit(content, cacheKey string, cacheEnabled bool, maxInlineContentChars int) (InlineResult, error) {
	if len([]rune(content)) <= maxInlineContentChars {
		return InlineResult{Content: content}, nil
	}
	if cacheEnabled && cacheKey != "" {
		uri, err := cache.ToResourceUri(cacheKey)
		if err != nil {
			return InlineResult{}, err
		}
		return InlineResult{ResourceURI: uri}, nil
	}

	r := []rune(content)
	cut := maxInlineContentChars
	if cut > len(r) {
		cut = len(r)
	}
	return InlineResult{Content: string(r[:cut]) + truncationMarker, Truncated: true}, nil
}
