/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fetch

import (
	"bytes"
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL string, mutate ...func(*config.ClientConfig)) *Client {
	t.Helper()
	cfg := config.ClientConfig{
		BaseURL:         baseURL,
		TLS:             config.TLSConfig{Mode: "system"},
		MetadataTimeout: 2 * time.Second,
		DownloadTimeout: 5 * time.Second,
		Logger:          zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"target":"v2"}`))
		case "/garbage":
			w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newClient(t, srv.URL)
	ctx := context.Background()

	var doc map[string]any
	require.NoError(t, c.FetchJSON(ctx, srv.URL+"/ok", &doc))
	assert.Equal(t, "v2", doc["target"])

	err := c.FetchJSON(ctx, srv.URL+"/missing", &doc)
	assert.ErrorIs(t, err, domain.ErrHTTP)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "HTTPError", domain.Kind(err))

	err = c.FetchJSON(ctx, srv.URL+"/garbage", &doc)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestFetch_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := newClient(t, srv.URL)

	_, err := c.FetchToFile(context.Background(), srv.URL, filepath.Join(t.TempDir(), "fw"))
	var se *domain.HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestFetch_StatusClasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/non-authoritative":
			w.WriteHeader(http.StatusNonAuthoritativeInfo)
			w.Write([]byte(`{"target":"v3"}`))
		case "/not-modified":
			w.WriteHeader(http.StatusNotModified)
		}
	}))
	defer srv.Close()
	c := newClient(t, srv.URL)
	ctx := context.Background()

	var doc map[string]any
	require.NoError(t, c.FetchJSON(ctx, srv.URL+"/non-authoritative", &doc))
	assert.Equal(t, "v3", doc["target"])

	err := c.FetchJSON(ctx, srv.URL+"/not-modified", &doc)
	var se *domain.HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotModified, se.StatusCode)
}

func TestFetch_NetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte("{}"))
		case "/short":
			// promise more than is sent
			w.Header().Set("Content-Length", "1000")
			w.Write([]byte("only a little"))
		case "/huge":
			w.Write(bytes.Repeat([]byte("x"), MaxDocumentSize+10))
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, func(cfg *config.ClientConfig) {
		cfg.MetadataTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	_, err := c.FetchBytes(ctx, srv.URL+"/slow")
	assert.ErrorIs(t, err, domain.ErrNetwork, "timeout")

	_, err = c.FetchToFile(ctx, srv.URL+"/short", filepath.Join(t.TempDir(), "fw"))
	assert.ErrorIs(t, err, domain.ErrNetwork, "truncated body")

	_, err = newClient(t, srv.URL).FetchBytes(ctx, srv.URL+"/huge")
	assert.ErrorIs(t, err, domain.ErrNetwork, "oversized document")

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = c.FetchBytes(ctx, url)
	assert.ErrorIs(t, err, domain.ErrNetwork, "connection refused")
	assert.Equal(t, "NetworkError", domain.Kind(err))
}

func TestFetchToFile_Streams(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 3*ChunkSize/16+7)
	var gotRequestID, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(RequestIDHeader)
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Write(payload)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	dest := filepath.Join(t.TempDir(), "fw")
	n, err := c.FetchToFile(WithRequestID(context.Background(), "run-1"), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, "run-1", gotRequestID)
	assert.Empty(t, gotEncoding)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchToFile_Zstd(t *testing.T) {
	payload := []byte(strings.Repeat("This is v2 firmware content. ", 5000))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "zstd" {
			w.Write(payload)
			return
		}
		w.Header().Set("Content-Encoding", "zstd")
		enc, err := zstd.NewWriter(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		enc.Write(payload)
		enc.Close()
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, func(cfg *config.ClientConfig) { cfg.Compression = true })
	dest := filepath.Join(t.TempDir(), "fw")
	n, err := c.FetchToFile(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchToFile_WriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).FetchToFile(context.Background(), srv.URL, filepath.Join(t.TempDir(), "missing", "fw"))
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestTLSModes(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	ctx := context.Background()

	_, err := newClient(t, srv.URL).FetchBytes(ctx, srv.URL)
	assert.ErrorIs(t, err, domain.ErrNetwork, "self-signed certificate must be rejected by the system store")

	insecure := newClient(t, srv.URL, func(cfg *config.ClientConfig) { cfg.TLS.Mode = "insecure" })
	_, err = insecure.FetchBytes(ctx, srv.URL)
	assert.NoError(t, err)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0o644))
	custom := newClient(t, srv.URL, func(cfg *config.ClientConfig) {
		cfg.TLS = config.TLSConfig{Mode: "custom", CAFile: caFile}
	})
	_, err = custom.FetchBytes(ctx, srv.URL)
	assert.NoError(t, err)
}

func TestNewClient_Invalid(t *testing.T) {
	cases := map[string]config.ClientConfig{
		"empty url":  {},
		"bad scheme": {BaseURL: "ftp://example.com"},
		"bad tls":    {BaseURL: "http://example.com", TLS: config.TLSConfig{Mode: "maybe"}},
		"missing ca": {BaseURL: "https://example.com", TLS: config.TLSConfig{Mode: "custom", CAFile: "/nonexistent/ca.pem"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient(cfg)
			assert.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestCheck(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/check", r.URL.Path)
		query = map[string]string{
			"current":  r.URL.Query().Get("current"),
			"deviceId": r.URL.Query().Get("deviceId"),
		}
		w.Write([]byte(`{"latest":"v3","current":"v2","update":true}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL+"/api/")
	target, err := c.Check(context.Background(), "v2", "dev-001")
	require.NoError(t, err)
	assert.Equal(t, "v3", target)
	assert.Equal(t, map[string]string{"current": "v2", "deviceId": "dev-001"}, query)
}

func TestTargetOf(t *testing.T) {
	cases := []struct {
		answer map[string]any
		want   string
	}{
		{map[string]any{"target": "v3", "latest": "v4", "version": "v5"}, "v3"},
		{map[string]any{"latest": "v4", "version": "v5"}, "v4"},
		{map[string]any{"version": "v5"}, "v5"},
		{map[string]any{"target": "", "version": "v5"}, "v5"},
		{map[string]any{"target": 3}, ""},
		{map[string]any{"update": false}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TargetOf(tc.answer), "%v", tc.answer)
	}
}

func TestFetchMetadataAndDownload_Paths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte("x"))
	}))
	defer srv.Close()
	c := newClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.FetchMetadata(ctx, "1.0.1", metadata.FormatJSON)
	require.NoError(t, err)
	_, err = c.FetchMetadata(ctx, "1.0.1", metadata.FormatCOSE)
	require.NoError(t, err)
	_, err = c.Download(ctx, "1.0.1", filepath.Join(t.TempDir(), "fw"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/versions/1.0.1/metadata",
		"/versions/1.0.1/metadata.cose",
		"/versions/1.0.1/download",
	}, paths)
}
