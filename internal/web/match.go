// Package web serves the host-facing control surface of a device: the JSON
// REST API, the text control channel and the binary protocol over
// WebSockets, and the Prometheus endpoint.
package web

import "strings"

// Params holds the values of {name} path parameters.
type Params map[string]string

// Get returns the named parameter, or "" when absent.
func (p Params) Get(name string) string { return p[name] }

// Match reports whether path matches pattern and extracts its parameters.
//
// Both sides are split on "/". One leading and one trailing slash are
// ignored on either side, so "/api/test" and "api/test/" are equivalent.
// A "{name}" segment matches any non-empty segment. Segment counts must be
// equal.
func Match(pattern, path string) (Params, bool) {
	want := splitPath(pattern)
	got := splitPath(path)
	if len(want) != len(got) {
		return nil, false
	}
	var params Params
	for i, seg := range want {
		if name, ok := paramName(seg); ok {
			if got[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(Params)
			}
			params[name] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func paramName(seg string) (string, bool) {
	if len(seg) < 3 || seg[0] != '{' || seg[len(seg)-1] != '}' {
		return "", false
	}
	return seg[1 : len(seg)-1], true
}
