package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware returns an http.Handler that records HTTP request
// count and duration metrics.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(rw.status)

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *metricsResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// knownPaths are the fixed top-level routes served by the bridge.
var knownPaths = map[string]bool{
	"/":            true,
	"/ping":        true,
	"/threads":     true,
	"/message":     true,
	"/messages":    true,
	"/latest":      true,
	"/broadcast":   true,
	"/suggest":     true,
	"/suggestions": true,
	"/metrics":     true,
}

// threadSubresources are the per-thread routes served by the bridge.
var threadSubresources = map[string]bool{
	"/events":        true,
	"/events/stream": true,
	"/state":         true,
	"/presence":      true,
}

// normalizePath bounds label cardinality: thread ids are collapsed to
// ":id" and unrecognized paths are grouped under "/other".
func normalizePath(path string) string {
	if rest, ok := strings.CutPrefix(path, "/threads/"); ok {
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			if sub := rest[i:]; threadSubresources[sub] {
				return "/threads/:id" + sub
			}
			return "/other"
		}
		return "/threads/:id"
	}
	if knownPaths[path] {
		return path
	}
	return "/other"
}
