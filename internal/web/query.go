package web

import (
	"net/url"
	"strings"
)

// Query holds the parameters of a query string. A key given without a value
// is present with an empty value.
type Query map[string]string

// ParseQuery parses "k=v&k2=v2". The leading "?" is optional. Keys and values
// are percent-decoded when valid and kept verbatim otherwise. The first
// occurrence of a repeated key wins.
func ParseQuery(raw string) Query {
	raw = strings.TrimPrefix(raw, "?")
	q := make(Query)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k = unescape(k)
		if k == "" {
			continue
		}
		if _, ok := q[k]; !ok {
			q[k] = unescape(v)
		}
	}
	return q
}

// Get returns the value of key, or "" when absent.
func (q Query) Get(key string) string { return q[key] }

// Has reports whether key was present.
func (q Query) Has(key string) bool {
	_, ok := q[key]
	return ok
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
