// Package urlutil provides a small structured URL helper with path-join
// and query-merge operations. Query parameters are single-valued: multiple
// values per key are legal in URLs but unused by the upstreams we talk to,
// and a flat map keeps call sites simple.
package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// URL wraps net/url.URL with value semantics and single-valued queries.
type URL struct {
	url   url.URL
	query map[string]string
}

// Parse parses a raw URL string.
func Parse(raw string) (*URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	query := make(map[string]string)
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	stripped := *parsed
	stripped.RawQuery = ""
	return &URL{url: stripped, query: query}, nil
}

// MustParse is Parse for statically known inputs; it panics on error.
func MustParse(raw string) *URL {
	parsed, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return parsed
}

// Scheme returns the URL scheme, lower-cased.
func (u *URL) Scheme() string {
	return strings.ToLower(u.url.Scheme)
}

// Hostname returns the host without the port.
func (u *URL) Hostname() string {
	return u.url.Hostname()
}

// Port returns the port or "" when absent.
func (u *URL) Port() string {
	return u.url.Port()
}

// Host returns host[:port].
func (u *URL) Host() string {
	return u.url.Host
}

// Path returns the URL path.
func (u *URL) Path() string {
	return u.url.Path
}

// Query returns the value for key, or "" when absent.
func (u *URL) Query(key string) string {
	return u.query[key]
}

// Copy returns an independent copy.
func (u *URL) Copy() *URL {
	query := make(map[string]string, len(u.query))
	for key, value := range u.query {
		query[key] = value
	}
	return &URL{url: u.url, query: query}
}

// JoinPath returns a copy with the parts appended to the path.
func (u *URL) JoinPath(parts ...string) *URL {
	out := u.Copy()
	elems := append([]string{out.url.Path}, parts...)
	out.url.Path = path.Join(elems...)
	return out
}

// WithPath returns a copy with the path replaced.
func (u *URL) WithPath(p string) *URL {
	out := u.Copy()
	out.url.Path = p
	return out
}

// WithQuery returns a copy with the given key set, replacing any previous
// value for that key.
func (u *URL) WithQuery(key, value string) *URL {
	out := u.Copy()
	out.query[key] = value
	return out
}

// String renders the URL with the query encoded in sorted key order.
func (u *URL) String() string {
	out := u.url
	if len(u.query) > 0 {
		values := url.Values{}
		for key, value := range u.query {
			values.Set(key, value)
		}
		out.RawQuery = values.Encode()
	}
	return out.String()
}
