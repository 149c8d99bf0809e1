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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoadAuthFromData(t *testing.T) {
	t.Parallel()

	creds := LoadAuthFromData([]byte(`
["mqtt://a:1883"]
username = "root"

[creds."mqtts://b:8883"]
username = "wrapped"
password = "pw"
`))
	require.Len(t, creds, 2)
	assert.Equal(t, "root", creds["mqtt://a:1883"].Username)
	assert.Equal(t, "pw", creds["mqtts://b:8883"].Password)
}

func TestLookupAuth(t *testing.T) {
	t.Parallel()

	creds := map[string]CredentialEntry{
		"mqtt://broker:1883":  {Username: "plain"},
		"mqtts://broker:8883": {Username: "tls"},
		"other:1883":          {Username: "schemeless"},
	}

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "exact", url: "mqtt://broker:1883", want: "plain"},
		{name: "tcp alias", url: "tcp://broker:1883", want: "plain"},
		{name: "ssl alias", url: "ssl://broker:8883", want: "tls"},
		{name: "schemeless", url: "mqtt://other:1883", want: "schemeless"},
		{name: "host case", url: "mqtt://BROKER:1883", want: "plain"},
		{name: "no match", url: "mqtt://nobody:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := LookupAuth(creds, tt.url)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Username)
		})
	}
}

func TestPropertyLookupAuthEmptyAlwaysNil(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		url := rapid.StringMatching(`(mqtt|mqtts|tcp)://[a-z]+:[0-9]{2,4}`).Draw(t, "url")
		if LookupAuth(nil, url) != nil {
			t.Fatalf("empty creds matched %q", url)
		}
	})
}

func TestPropertyLookupAuthAliasMatches(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		host := rapid.StringMatching(`[a-z]{3,10}:[0-9]{2,4}`).Draw(t, "host")
		user := rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "user")
		creds := map[string]CredentialEntry{"mqtt://" + host: {Username: user}}

		got := LookupAuth(creds, "tcp://"+host)
		if got == nil || got.Username != user {
			t.Fatalf("tcp alias did not match mqtt entry for %q", host)
		}
	})
}
