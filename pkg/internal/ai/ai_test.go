package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
)

func testConfig() configs.AIConfig {
	return configs.AIConfig{TimeoutSeconds: 5, MaxRetries: 2}
}

func TestCompleteRetriesTransient(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":" pediatric, leukemia "}}]}`)
	}))
	defer srv.Close()

	c := New("text", Endpoint{BaseURL: srv.URL, Key: "k", Model: "m"}, testConfig())

	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "pediatric, leukemia", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("text", Endpoint{BaseURL: srv.URL, Model: "m"}, testConfig())

	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateJSONCorrupt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"not json"}}]}`)
	}))
	defer srv.Close()

	c := New("text", Endpoint{BaseURL: srv.URL, Model: "m"}, testConfig())

	_, err := c.GenerateJSON(context.Background(), "sys", "user", "s", map[string]any{"type": "object"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindCorrupt, apperr.KindOf(err))
}

func TestTranscribeMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, "whisper-1", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}

		defer f.Close()

		b, _ := io.ReadAll(f)
		assert.Equal(t, "chunk.wav", hdr.Filename)
		assert.Equal(t, "RIFF", string(b))

		_, _ = io.WriteString(w, `{"text":"hello world"}`)
	}))
	defer srv.Close()

	c := New("speech", Endpoint{BaseURL: srv.URL, Model: "whisper-1"}, testConfig())

	text, err := c.Transcribe(context.Background(), "/tmp/x/chunk.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}
