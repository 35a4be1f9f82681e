package httpds

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"dwh/internal/datasource"
)

// Store reads objects from one HTTP host. HTTP has no listing, so a location
// names exactly one object.
type Store struct {
	client *Client
	base   url.URL
}

var _ datasource.Store = (*Store)(nil)

// NewStore returns a Store for scheme://host.
func NewStore(client *Client, scheme, host string) *Store {
	return &Store{client: client, base: url.URL{Scheme: scheme, Host: host}}
}

// List reports prefix itself as the only object. Directory-style prefixes
// cannot be expanded and are rejected.
func (s *Store) List(_ context.Context, prefix string) ([]datasource.Object, error) {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("httpds: %s cannot be listed; name a single object", s.url(prefix))
	}
	return []datasource.Object{{Key: prefix}}, nil
}

// Open fetches key. The caller closes the body.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url(key))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *Store) url(key string) string {
	u := s.base
	u.Path = path.Join("/", key)
	return u.String()
}

// newClient is a test hook.
var newClient = func() *Client { return NewClient(Config{}) }

func init() {
	for _, scheme := range []string{"http", "https"} {
		datasource.Register(scheme, func(_ context.Context, loc datasource.Location, _ datasource.Options) (datasource.Store, error) {
			if loc.Bucket == "" {
				return nil, fmt.Errorf("httpds: %s location has no host", loc.Scheme)
			}
			return NewStore(newClient(), loc.Scheme, loc.Bucket), nil
		})
	}
}
