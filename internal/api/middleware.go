package api

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"grimm.is/holdover/internal/logging"
)

// statusWriter captures the status code and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Hijack lets WebSocket upgrades through the wrapper.
func (rw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// instrument logs every request and records it in the metrics registry,
// labelled by route pattern so path parameters cannot explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(rw, r)

		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		duration := time.Since(start)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.RecordAPIRequest(endpoint, rw.status, duration.Seconds())
		}

		if r.URL.Path == "/metrics" {
			return
		}
		level := "info"
		switch {
		case rw.status >= 500:
			level = "error"
		case rw.status >= 400:
			level = "warn"
		}
		logging.APILog(level, "%s %s %d %d %v", r.Method, r.URL.Path, rw.status, rw.size, duration.Round(time.Millisecond))
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", duration)
	})
}

// maxBody caps request bodies.
func (s *Server) maxBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > s.cfg.MaxBodyBytes {
			WriteError(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
