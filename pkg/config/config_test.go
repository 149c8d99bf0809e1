// Zaparoo Echo
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Echo.
//
// Zaparoo Echo is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Echo is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Echo.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestNewConfig_WritesDefaults(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "echo")
	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, CfgFile))
	assert.NotEmpty(t, cfg.DeviceID())
	assert.Equal(t, DriverPN532, cfg.Radio().Driver)
	assert.Equal(t, DefaultDiscoveryTimeout, cfg.Radio().DiscoveryTimeout)
	assert.True(t, cfg.HCEEnabled())
	assert.True(t, cfg.HCEDiscovery())
	assert.Equal(t, ":7498", cfg.HCEListen())
	assert.Equal(t, EmitPolicyIdentifier, cfg.Emit().Policy)
	assert.Equal(t, "en", cfg.Emit().Language)

	reloaded, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID(), reloaded.DeviceID(), "device id is stable across loads")
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CfgFile), `
config_schema = 1
debug_logging = true

[radio]
driver = "file"
path = "/run/echo/tag.txt"

[emit]
policy = "replay"
`)

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	r := cfg.Radio()
	assert.Equal(t, DriverFile, r.Driver)
	assert.Equal(t, "/run/echo/tag.txt", r.Path)
	assert.Equal(t, "uart", r.Transport, "unset keys keep their defaults")
	assert.True(t, cfg.DebugLogging())
	assert.Equal(t, EmitPolicyReplay, cfg.Emit().Policy)
	assert.Equal(t, "en", cfg.Emit().Language)
	assert.Equal(t, DefaultHCEPort, cfg.HCEPort())
}

func TestLoad_SchemaMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CfgFile), "config_schema = 99\n")

	_, err := NewConfig(dir, BaseDefaults)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoad_InvalidTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CfgFile), "config_schema = [\n")

	_, err := NewConfig(dir, BaseDefaults)
	require.ErrorContains(t, err, "failed to unmarshal config")
}

//nolint:paralleltest // modifies environment
func TestNewConfig_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom", "echo.toml")
	t.Setenv(CfgEnv, path)

	cfg, err := NewConfig(t.TempDir(), BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.FileExists(t, path)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	cfg.SetRadio(Radio{
		Driver:           DriverMQTT,
		Transport:        "uart",
		Path:             "localhost:1883/echo/tags",
		DiscoveryTimeout: 10,
	})
	cfg.SetEmitPolicy(EmitPolicyReplay)
	cfg.SetHCEEnabled(false)
	cfg.SetErrorReporting(true)
	require.NoError(t, cfg.Save())

	reloaded, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)
	assert.Equal(t, cfg.Radio(), reloaded.Radio())
	assert.Equal(t, EmitPolicyReplay, reloaded.Emit().Policy)
	assert.False(t, reloaded.HCEEnabled())
	assert.True(t, reloaded.ErrorReporting())
}

func TestHCEListen(t *testing.T) {
	t.Parallel()

	disabled := false
	tests := []struct {
		name string
		want string
		hce  HCE
	}{
		{name: "default", hce: HCE{}, want: ":7498"},
		{name: "custom port", hce: HCE{Port: 9000}, want: ":9000"},
		{name: "host only", hce: HCE{Listen: "127.0.0.1"}, want: "127.0.0.1:7498"},
		{name: "host and port", hce: HCE{Listen: "0.0.0.0:8080", Port: 9000}, want: "0.0.0.0:8080"},
		{name: "discovery off", hce: HCE{Discovery: &disabled}, want: ":7498"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Instance{vals: Values{HCE: tt.hce}}
			assert.Equal(t, tt.want, cfg.HCEListen())
		})
	}
}

func TestHCEDiscovery(t *testing.T) {
	t.Parallel()

	off := false
	assert.True(t, (&Instance{}).HCEDiscovery())
	assert.False(t, (&Instance{vals: Values{HCE: HCE{Discovery: &off}}}).HCEDiscovery())
	assert.Equal(t, DefaultAckTimeout, (&Instance{}).HCEAckTimeout())
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	data := filepath.Join("/var", "lib", "echo")
	abs := filepath.Join("/srv", "scans.db")

	assert.Equal(t, filepath.Join(data, ArchiveFile), (&Instance{}).ArchivePath(data))
	assert.Equal(t, abs, (&Instance{vals: Values{Archive: Archive{Path: abs}}}).ArchivePath(data))
	assert.Equal(t, filepath.Join(data, "mine.db"),
		(&Instance{vals: Values{Archive: Archive{Path: "mine.db"}}}).ArchivePath(data))
}

func TestLoad_AuthFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, AuthFile), `
["mqtt://broker.local:1883"]
username = "echo"
password = "secret"
`)

	cfg, err := NewConfig(dir, BaseDefaults)
	require.NoError(t, err)

	creds := cfg.LookupAuth("tcp://broker.local:1883")
	require.NotNil(t, creds)
	assert.Equal(t, "echo", creds.Username)
	assert.Nil(t, cfg.LookupAuth("mqtt://other:1883"))
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	cfg := &Instance{vals: BaseDefaults}
	done := make(chan struct{})
	for range 8 {
		go func() {
			for range 100 {
				_ = cfg.HCEListen()
				_ = cfg.Radio()
				cfg.SetEmitPolicy(EmitPolicyReplay)
			}
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
	assert.Equal(t, EmitPolicyReplay, cfg.Emit().Policy)
}
