/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kentakayama/ota-over-http/internal/activation"
	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/fetch"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/kentakayama/ota-over-http/internal/publish"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/kentakayama/ota-over-http/internal/testutil"
	"github.com/kentakayama/ota-over-http/internal/updater"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	store   *store.Store
	manager *activation.Manager
	updater *updater.Updater
}

func newDevice(t *testing.T, baseURL string, format metadata.Format, compression bool) *device {
	t.Helper()
	verifier, err := signing.NewVerifier(&testutil.TrustedKey(t).PublicKey)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ptr, err := activation.NewPointer(activation.KindFile, st.Root(), st.StatePath())
	require.NoError(t, err)
	manager := activation.NewManager(st, ptr, zerolog.Nop())

	client, err := fetch.NewClient(config.ClientConfig{
		BaseURL:     baseURL,
		Compression: compression,
		Progress:    true,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	u := updater.New(updater.Config{DeviceID: "dev-e2e", Format: format, Logger: zerolog.Nop()},
		client, verifier, st, manager, metrics.NoopUpdater{})
	return &device{store: st, manager: manager, updater: u}
}

func (d *device) current(t *testing.T) string {
	t.Helper()
	v, err := d.manager.Current()
	require.NoError(t, err)
	return v
}

func TestEndToEnd_UpdaterAgainstServer(t *testing.T) {
	cases := []struct {
		name        string
		format      metadata.Format
		compression bool
	}{
		{"json", metadata.FormatJSON, false},
		{"json zstd", metadata.FormatJSON, true},
		{"cose zstd", metadata.FormatCOSE, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.publish(t, "v1", 1, true)
			f.sync(t)

			dev := newDevice(t, f.http.URL, tc.format, tc.compression)
			res := dev.updater.Run(ctx)
			require.NoError(t, res.Err)
			assert.True(t, res.Updated)
			assert.Equal(t, "v1", dev.current(t))

			inst, err := dev.store.Lookup("v1")
			require.NoError(t, err)
			assert.Equal(t, tc.format, inst.Format)

			// nothing new: the run stops after CHECK
			res = dev.updater.Run(ctx)
			require.NoError(t, res.Err)
			assert.False(t, res.Updated)

			f.publish(t, "v2", 2, true)
			f.sync(t)
			res = dev.updater.Run(ctx)
			require.NoError(t, res.Err)
			assert.True(t, res.Updated)
			assert.Equal(t, "v1", res.Current)
			assert.Equal(t, "v2", dev.current(t))

			d, err := f.devices.FindByDeviceID(ctx, "dev-e2e")
			require.NoError(t, err)
			assert.Equal(t, "v1", d.ReportedVersion)
			assert.Equal(t, int64(3), d.CheckCount)
		})
	}
}

func TestEndToEnd_TamperedPayloadNotInstalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, "v1", 1, false)
	f.publish(t, "v2", 2, false)
	f.sync(t)

	dev := newDevice(t, f.http.URL, metadata.FormatJSON, true)
	res := dev.updater.Run(ctx)
	require.NoError(t, res.Err)
	require.Equal(t, "v2", dev.current(t))

	// the payload is swapped after registration
	f.publish(t, "v3", 3, false)
	f.sync(t)
	testutil.WriteFile(t, filepath.Join(f.cfg.ReleasesDir, "v3", publish.DefaultFile), []byte("This is v3 firmware c0ntent"))

	res = dev.updater.Run(ctx)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, domain.ErrHashMismatch)
	assert.Equal(t, updater.StateVerifyHash, res.FailedAt)
	assert.False(t, dev.store.IsInstalled("v3"))
	assert.Equal(t, "v2", dev.current(t))
}
