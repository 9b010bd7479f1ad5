package middleware

import (
	"net/http"
	"time"
)

// knownRoutes are reported as-is; any other path is collapsed to "other"
// so scanners cannot blow up label cardinality.
var knownRoutes = map[string]bool{
	"/":               true,
	"/v1/discovery":   true,
	"/v1/swipes":      true,
	"/v1/swipes/undo": true,
	"/v1/events":      true,
	"/health":         true,
	"/ready":          true,
	"/metrics":        true,
}

// normalizePath maps a request path onto a bounded set of route labels.
// Trailing slashes are ignored.
func normalizePath(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if knownRoutes[path] {
		return path
	}
	return "other"
}

func probePath(path string) bool {
	return path == "/health" || path == "/ready"
}

// HTTPMetrics records the count, latency and response size of every
// request except health probes.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			metrics.ObserveHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.statusCode, time.Since(start), rw.size)
		})
	}
}
