package web

import (
	"net/http"
	"strings"
)

// HandlerFunc handles a routed request.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, p Params)

type route struct {
	method  string
	pattern string
	handler HandlerFunc
}

// Router dispatches requests with Match. Routes are tried in registration
// order; a path that matches only under other methods yields 405.
type Router struct {
	routes []route
}

// Handle registers h for method and pattern.
func (rt *Router) Handle(method, pattern string, h HandlerFunc) {
	rt.routes = append(rt.routes, route{method: method, pattern: pattern, handler: h})
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	for _, rte := range rt.routes {
		params, ok := Match(rte.pattern, r.URL.Path)
		if !ok {
			continue
		}
		if rte.method != r.Method {
			allowed = append(allowed, rte.method)
			continue
		}
		rte.handler(w, r, params)
		return
	}
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}
