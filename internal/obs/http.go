package obs

import (
	"net/http"
	"time"
)

// AccessEntry describes one served request.
type AccessEntry struct {
	Method   string
	Path     string
	Status   int
	Bytes    int64
	Duration time.Duration
}

// statusWriter captures the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// AccessLog logs one debug event per request and passes the entry to each
// observer once the handler returns. Fixture servers observe entries to see
// which endpoints a page reached.
func AccessLog(pkg string, next http.Handler, observers ...func(AccessEntry)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		entry := AccessEntry{
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   sw.status,
			Bytes:    sw.bytes,
			Duration: time.Since(start),
		}
		if entry.Status == 0 {
			entry.Status = http.StatusOK
		}
		From(r.Context()).With("pkg", pkg).Debug(
			"http_access",
			"method", entry.Method,
			"path", entry.Path,
			"status", entry.Status,
			"dur_ms", float64(entry.Duration.Microseconds())/1000.0,
			"resp_bytes", entry.Bytes,
		)
		for _, observe := range observers {
			observe(entry)
		}
	})
}
