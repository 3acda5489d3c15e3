package cache

import (
	"net/url"
	"sort"
	"strings"
)

// DefaultParams lists query parameters whose value is the upstream's implicit
// default. A parameter carrying exactly that value does not change the
// response, so it is left out of the key.
var DefaultParams = map[string]string{
	"page": "1",
}

// RequestKey describes an upstream request for caching purposes.
type RequestKey struct {
	// Path is the resource path (e.g., "/books" or "/books/1342/").
	Path string

	// Query holds the request parameters.
	Query url.Values

	// Defaults overrides DefaultParams when non-nil.
	Defaults map[string]string
}

// NewRequestKey creates a key for path and query using DefaultParams.
func NewRequestKey(path string, query url.Values) RequestKey {
	return RequestKey{Path: path, Query: query}
}

// KeyFromURL builds a key from an absolute or relative upstream URL.
// Scheme and host are ignored; the key only identifies the resource.
func KeyFromURL(raw string) (RequestKey, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RequestKey{}, err
	}
	return NewRequestKey(u.Path, u.Query()), nil
}

// String generates the normalized cache key.
// Format: /path/?a=1&b=2
//
// The path always has one leading and one trailing slash, empty values and
// parameters equal to their default are dropped, and the remaining parameters
// (and repeated values) are sorted. Equivalent requests therefore share a key:
//
//	/books?topic=poetry&page=1  ->  /books/?topic=poetry
//	/books/?sort=popular&topic=poetry == /books?topic=poetry&sort=popular
func (k RequestKey) String() string {
	path := "/" + strings.Trim(k.Path, "/")
	if path != "/" {
		path += "/"
	}

	defaults := k.Defaults
	if defaults == nil {
		defaults = DefaultParams
	}

	names := make([]string, 0, len(k.Query))
	for name := range k.Query {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		values := make([]string, 0, len(k.Query[name]))
		for _, v := range k.Query[name] {
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		if def, ok := defaults[name]; ok && len(values) == 1 && values[0] == def {
			continue
		}
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		}
	}

	if len(parts) == 0 {
		return path
	}
	return path + "?" + strings.Join(parts, "&")
}
