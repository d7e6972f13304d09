package source

import "context"

// Getter retrieves the body of a URL, failing on non-2xx responses.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

var _ Getter = (*Client)(nil)
