/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package fetch retrieves metadata and firmware over HTTP(S).
//
// Errors are classified with the domain taxonomy: transport failures and
// failures reading a response body are ErrNetwork, non-200 answers are
// *domain.HTTPStatusError (ErrHTTP), and failures writing the destination
// file are ErrIO. There are no internal retries.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/klauspost/compress/zstd"
	"github.com/machinebox/progress"
	"github.com/rs/zerolog"
)

const (
	defaultMetadataTimeout = 30 * time.Second
	defaultDownloadTimeout = 60 * time.Second
	defaultUserAgent       = "ota-updater/1.0"

	// ChunkSize is the copy buffer used for firmware downloads.
	ChunkSize = 64 * 1024
	// MaxDocumentSize bounds in-memory responses (metadata, check).
	MaxDocumentSize = 1 << 20

	RequestIDHeader  = "X-Request-ID"
	progressInterval = time.Second
)

type Client struct {
	baseURL     *url.URL
	metaClient  *http.Client
	dataClient  *http.Client
	compression bool
	progress    bool
	logger      zerolog.Logger
}

func NewClient(cfg config.ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: server URL is empty", domain.ErrConfig)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse server URL: %w", domain.ErrConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported URL scheme %q", domain.ErrConfig, base.Scheme)
	}

	tlsConfig, err := newTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if cfg.TLS.Mode == "insecure" {
		cfg.Logger.Warn().Msg("TLS certificate verification is disabled")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	// content coding is negotiated explicitly, see Client.do
	transport.DisableCompression = true

	metaTimeout := cfg.MetadataTimeout
	if metaTimeout == 0 {
		metaTimeout = defaultMetadataTimeout
	}
	dataTimeout := cfg.DownloadTimeout
	if dataTimeout == 0 {
		dataTimeout = defaultDownloadTimeout
	}

	return &Client{
		baseURL:     base,
		metaClient:  &http.Client{Timeout: metaTimeout, Transport: transport},
		dataClient:  &http.Client{Timeout: dataTimeout, Transport: transport},
		compression: cfg.Compression,
		progress:    cfg.Progress,
		logger:      cfg.Logger.With().Str("component", "fetch").Logger(),
	}, nil
}

func newTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	switch cfg.Mode {
	case "", "system":
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	case "custom":
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA file: %w", domain.ErrConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", domain.ErrConfig, cfg.CAFile)
		}
		return &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: pool}, nil
	case "insecure":
		return &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown TLS mode %q", domain.ErrConfig, cfg.Mode)
	}
}

type requestIDKey struct{}

// WithRequestID tags every request made with ctx with id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// URL resolves path elements against the server base URL.
func (c *Client) URL(query url.Values, elem ...string) string {
	u := c.baseURL.JoinPath(elem...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// FetchJSON decodes the JSON document at rawURL into out.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.FetchBytes(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", domain.ErrNetwork, rawURL, err)
	}
	return nil
}

// FetchBytes returns the body at rawURL, bounded to MaxDocumentSize, within
// the metadata timeout.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, body, err := c.do(ctx, c.metaClient, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrNetwork, rawURL, err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", domain.ErrNetwork, rawURL, MaxDocumentSize)
	}
	return data, nil
}

// FetchToFile streams rawURL into dest in ChunkSize pieces within the
// download timeout and returns the number of decoded bytes written.
func (c *Client) FetchToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	resp, body, err := c.do(ctx, c.dataClient, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	defer body.Close()

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	written, err := c.copy(f, body, resp, rawURL)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: %w", domain.ErrIO, cerr)
	}
	if err != nil {
		return written, err
	}
	c.logger.Debug().Str("url", rawURL).Int64("bytes", written).Msg("download finished")
	return written, nil
}

func (c *Client) copy(dst io.Writer, body io.Reader, resp *http.Response, rawURL string) (int64, error) {
	counter, _ := resp.Body.(interface{ N() int64 })
	total := resp.ContentLength
	last := time.Now()

	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("%w: %w", domain.ErrIO, werr)
			}
			written += int64(n)
		}
		if c.progress && counter != nil && total > 0 && time.Since(last) >= progressInterval {
			last = time.Now()
			c.logger.Info().
				Str("url", rawURL).
				Int64("received", counter.N()).
				Int64("total", total).
				Msgf("downloading: %d%%", counter.N()*100/total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: read %s: %w", domain.ErrNetwork, rawURL, rerr)
		}
	}
}

// do performs a GET and returns the response together with the decoded body
// reader. Callers close both.
func (c *Client) do(ctx context.Context, hc *http.Client, rawURL string) (*http.Response, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create request: %w", domain.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if id := requestID(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	if c.compression {
		req.Header.Set("Accept-Encoding", "zstd")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		c.logger.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("unexpected status")
		return nil, nil, &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	resp.Body = &countingBody{Reader: progress.NewReader(resp.Body), closer: resp.Body}
	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, nil, err
	}
	return resp, body, nil
}

type countingBody struct {
	*progress.Reader
	closer io.Closer
}

func (b *countingBody) Close() error { return b.closer.Close() }

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "zstd":
		dec, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", domain.ErrNetwork, err)
		}
		return &zstdBody{dec}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported content encoding %q", domain.ErrNetwork, enc)
	}
}

type zstdBody struct{ *zstd.Decoder }

func (z *zstdBody) Close() error {
	z.Decoder.Close()
	return nil
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var se *domain.HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
