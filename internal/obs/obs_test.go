package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestFrom_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithScenario(ctx, "quote-submission")
	ctx = WithStep(ctx, 3, "click")
	From(ctx).Info("step_started")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "quote-submission", lines[0]["scenario"])
	assert.Equal(t, "3", lines[0]["step"])
	assert.Equal(t, "click", lines[0]["step_kind"])
}

func TestWithScenario_ClearsStep(t *testing.T) {
	ctx := WithStep(context.Background(), 2, "fill")
	ctx = WithScenario(ctx, "sp-inbox")

	corr := CorrelationFromContext(ctx)
	assert.Equal(t, 0, corr.Step)
	assert.Empty(t, corr.StepKind)
	assert.Equal(t, "unknown", RunIDFromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestAccessLog_LogsAndObserves(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	var seen []AccessEntry
	h := AccessLog("fixture", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}), func(e AccessEntry) { seen = append(seen, e) })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quotes/submit", nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_access", lines[0]["msg"])
	assert.Equal(t, float64(http.StatusCreated), lines[0]["status"])
	assert.Equal(t, float64(2), lines[0]["resp_bytes"])

	require.Len(t, seen, 1)
	assert.Equal(t, "/api/quotes/submit", seen[0].Path)
	assert.Equal(t, http.StatusCreated, seen[0].Status)
	assert.Equal(t, int64(2), seen[0].Bytes)
}

func TestAccessLog_DefaultsStatusWhenHandlerWritesNothing(t *testing.T) {
	var seen AccessEntry
	h := AccessLog("fixture", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
		func(e AccessEntry) { seen = e })
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusOK, seen.Status)
	assert.Equal(t, http.MethodGet, seen.Method)
}
