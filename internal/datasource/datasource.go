// Package datasource lists and reads the raw JSON objects that feed the
// staging tables. A location is either an object-storage URI (s3://bucket/
// prefix) or a local path (file:// URI or plain path). Stores register by
// scheme; import dwh/internal/datasource/all to link the built-in ones.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"dwh/internal/config"
)

// Object is one listed object.
type Object struct {
	Key  string
	Size int64
}

// Store lists and opens objects within one bucket or filesystem root.
type Store interface {
	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Location is a parsed source URI.
type Location struct {
	Scheme string // "s3", "file", "http" or "https"
	Bucket string // empty for files
	Prefix string // key prefix, or filesystem path
}

// ParseURI parses s3://bucket/prefix, file:///path or a plain path.
func ParseURI(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("datasource: empty location")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: "file", Prefix: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("datasource: parse %q: %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			// file://relative/dir
			p = u.Host + u.Path
		}
		if p == "" {
			return Location{}, fmt.Errorf("datasource: %q has no path", uri)
		}
		return Location{Scheme: "file", Prefix: p}, nil
	case "s3", "s3a":
		if u.Host == "" {
			return Location{}, fmt.Errorf("datasource: %q has no bucket", uri)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return Location{Scheme: u.Scheme, Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
	}
}

// String renders l back to a URI; local paths are returned as is.
func (l Location) String() string {
	if l.Scheme == "file" {
		return l.Prefix
	}
	return l.Scheme + "://" + path.Join(l.Bucket, l.Prefix)
}

// Options carries credentials and endpoints shared by all stores.
type Options struct {
	S3     config.S3
	Region string
}

// Factory opens a Store for loc.
type Factory func(ctx context.Context, loc Location, opts Options) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs the factory for scheme.
func Register(scheme string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[scheme] = f
}

// Open returns a Store able to serve loc.
func Open(ctx context.Context, loc Location, opts Options) (Store, error) {
	regMu.RLock()
	f, ok := factories[loc.Scheme]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("datasource: no store registered for scheme %q", loc.Scheme)
	}
	return f(ctx, loc, opts)
}

// ListJSON lists the .json objects under loc in lexical key order.
func ListJSON(ctx context.Context, s Store, loc Location) ([]Object, error) {
	all, err := s.List(ctx, loc.Prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(all))
	for _, o := range all {
		if strings.HasSuffix(strings.ToLower(o.Key), ".json") {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// maxDocumentSize bounds ReadObject; JSONPaths documents are tiny.
const maxDocumentSize = 1 << 20

// ReadObject reads a small object, such as a JSONPaths document, fully.
func ReadObject(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("datasource: read %s: %w", key, err)
	}
	if len(b) > maxDocumentSize {
		return nil, fmt.Errorf("datasource: %s exceeds %d bytes", key, maxDocumentSize)
	}
	return b, nil
}
