package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		expected string
	}{
		{name: "simple", segments: []string{"refusjon", "974600019", "r-1", "a.pdf"}, expected: "refusjon/974600019/r-1/a.pdf"},
		{name: "empty segments dropped", segments: []string{"refusjon", "", "a.csv"}, expected: "refusjon/a.csv"},
		{name: "slashes replaced", segments: []string{"a/b", "c"}, expected: "a_b/c"},
		{name: "whitespace trimmed", segments: []string{" a ", "b"}, expected: "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Key(tt.segments...))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("pdf"))
	assert.Equal(t, "text/csv; charset=utf-8", ContentType("CSV"))
	assert.Equal(t, "application/octet-stream", ContentType("xml"))
}

func TestDisabledService(t *testing.T) {
	svc, err := NewService(&config.Config{}, slog.Default())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	_, err = svc.Upload(context.Background(), Object{Key: "k", Content: []byte("x")})
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	var method, path, contentType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{Storage: config.StorageConfig{
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "arkiv",
		Region:          "us-east-1",
	}}
	svc, err := NewService(cfg, slog.Default())
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	res, err := svc.Upload(context.Background(), Object{
		Key:         "refusjon/974600019/r-1/a.pdf",
		Content:     []byte("%PDF"),
		ContentType: ContentType("pdf"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/arkiv/refusjon/974600019/r-1/a.pdf", path)
	assert.Equal(t, "application/pdf", contentType)
	assert.Contains(t, string(body), "%PDF")
	assert.Equal(t, "abc123", res.ETag)
	assert.Equal(t, int64(4), res.Size)
}
