package gemini

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport records method, path, status and latency of every
// call at debug level. Query strings and headers are never logged since
// they may carry the API key.
type loggingTransport struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	rt := t.base
	if rt == nil {
		rt = http.DefaultTransport
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.log.Debug("gemini request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return resp, err
	}
	t.log.Debug("gemini request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}
