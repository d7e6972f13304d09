package source

import (
	"context"
	"log/slog"
)

// BodyCache keeps response bodies keyed by URL.
type BodyCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, data []byte) error
}

// CachedGetter serves repeated GETs from a cache. Cache errors are logged
// and the request falls through to the wrapped Getter.
type CachedGetter struct {
	next  Getter
	cache BodyCache
}

var _ Getter = (*CachedGetter)(nil)

func NewCachedGetter(next Getter, cache BodyCache) *CachedGetter {
	return &CachedGetter{next: next, cache: cache}
}

func (g *CachedGetter) Get(ctx context.Context, url string) ([]byte, error) {
	data, ok, err := g.cache.Get(ctx, url)
	if err != nil {
		slog.Warn("Release cache read failed", "url", url, "error", err)
	} else if ok {
		slog.Debug("Release served from cache", "url", url, "bytes", len(data))
		return data, nil
	}

	data, err = g.next.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := g.cache.Set(ctx, url, data); err != nil {
		slog.Warn("Release cache write failed", "url", url, "error", err)
	}

	return data, nil
}
