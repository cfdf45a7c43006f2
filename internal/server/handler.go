/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/fetch"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCOSE = `application/cose; cose-type="cose-sign1"`
)

type handler struct {
	catalog     *Catalog
	cache       MetadataCache
	metrics     metrics.ServerMetrics
	compression bool
	mux         *http.ServeMux
	logger      zerolog.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

type versionInfo struct {
	Version  string `json:"version"`
	Sequence uint64 `json:"sequence,omitempty"`
	File     string `json:"file"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	COSE     bool   `json:"cose"`
}

type checkResponse struct {
	Target  string `json:"target"`
	Current string `json:"current"`
	Update  bool   `json:"update"`
}

// newHandler routes the distribution API. gatherer may be nil, in which case
// /metrics is not served.
func newHandler(catalog *Catalog, cache MetadataCache, m metrics.ServerMetrics, gatherer prometheus.Gatherer, compression bool, logger zerolog.Logger) *handler {
	h := &handler{
		catalog:     catalog,
		cache:       cache,
		metrics:     m,
		compression: compression,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	h.route("GET /health", "health", h.health)
	h.route("GET /versions", "versions", h.versions)
	h.route("GET /check", "check", h.check)
	h.route("GET /versions/{id}/metadata", "metadata", h.metadata(metadata.FormatJSON))
	h.route("GET /versions/{id}/metadata.cose", "metadata_cose", h.metadata(metadata.FormatCOSE))
	h.route("GET /versions/{id}/download", "download", h.download)
	if gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *handler) route(pattern, name string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, metrics.Middleware(h.metrics, name, fn))
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *handler) requestLogger(r *http.Request) zerolog.Logger {
	ctx := h.logger.With().Str("path", r.URL.Path)
	if id := r.Header.Get(fetch.RequestIDHeader); id != "" {
		ctx = ctx.Str("request_id", id)
	}
	return ctx.Logger()
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) versions(w http.ResponseWriter, r *http.Request) {
	rs, err := h.catalog.Releases(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]versionInfo, 0, len(rs))
	for _, rel := range rs {
		out = append(out, versionInfo{
			Version:  rel.Version,
			Sequence: rel.Sequence,
			File:     rel.File,
			SHA256:   rel.SHA256,
			Size:     rel.Size,
			COSE:     len(rel.COSE) > 0,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := q.Get("current")
	rel, err := h.catalog.CheckIn(r.Context(), q.Get("deviceId"), current)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := checkResponse{Current: current}
	if rel != nil {
		resp.Target = rel.Version
		resp.Update = rel.Version != current
	}
	log := h.requestLogger(r)
	log.Debug().
		Str("device_id", q.Get("deviceId")).
		Str("current", current).
		Str("target", resp.Target).
		Msg("check")
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) metadata(format metadata.Format) http.HandlerFunc {
	contentType := contentTypeJSON
	if format == metadata.FormatCOSE {
		contentType = contentTypeCOSE
	}
	return func(w http.ResponseWriter, r *http.Request) {
		version := r.PathValue("id")
		if doc, ok := h.cache.Get(version, format); ok {
			h.metrics.IncCacheHits()
			h.writeResponse(w, responseSpec{status: http.StatusOK, body: doc, contentType: contentType})
			return
		}
		h.metrics.IncCacheMisses()

		rel, err := h.catalog.Release(r.Context(), version)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		doc := rel.Metadata
		if format == metadata.FormatCOSE {
			doc = rel.COSE
		}
		if len(doc) == 0 {
			h.writeError(w, http.StatusNotFound, format.FileName()+" not found")
			return
		}
		h.cache.Set(version, format, doc)
		h.writeResponse(w, responseSpec{status: http.StatusOK, body: doc, contentType: contentType})
	}
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	rel, err := h.catalog.Release(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := os.Open(h.catalog.PayloadPath(rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = domain.ErrNotFound
		}
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	log := h.requestLogger(r)
	for k, v := range defaultHeaders {
		w.Header().Set(k, v)
	}
	w.Header().Set("Server", serverName)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rel.File+`"`)
	w.Header().Add("Vary", "Accept-Encoding")

	var n int64
	if h.compression && acceptsZstd(r.Header.Get("Accept-Encoding")) {
		w.Header().Set("Content-Encoding", "zstd")
		w.WriteHeader(http.StatusOK)
		enc, encErr := zstd.NewWriter(w)
		if encErr != nil {
			log.Error().Err(encErr).Msg("zstd encoder")
			return
		}
		n, err = io.Copy(enc, f)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(rel.Size, 10))
		w.WriteHeader(http.StatusOK)
		n, err = io.Copy(w, f)
	}
	h.metrics.AddBytesServed(n)
	if err != nil {
		log.Warn().Err(err).Str("version", rel.Version).Int64("bytes", n).Msg("download interrupted")
		return
	}
	log.Info().Str("version", rel.Version).Int64("bytes", n).Msg("firmware served")
}

func acceptsZstd(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "zstd") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

// fail maps catalog errors onto HTTP statuses.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidVersion):
		h.writeError(w, http.StatusBadRequest, "invalid version")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "version not found")
	default:
		log := h.requestLogger(r)
		log.Error().Err(err).Str("kind", domain.Kind(err)).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed encoding response")
		h.writeResponse(w, responseSpec{status: http.StatusInternalServerError})
		return
	}
	h.writeResponse(w, responseSpec{status: status, body: body, contentType: contentTypeJSON})
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", serverName)

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Warn().Err(err).Msg("failed writing response body")
		}
		return
	}

	w.WriteHeader(spec.status)
}

const serverName = "ota-server"

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
