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
	"maps"
	"net/url"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// CredentialEntry holds credentials for a broker or server URL.
type CredentialEntry struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// schemeAliases maps protocol variants to their canonical form.
var schemeAliases = map[string]string{
	"tcp": "mqtt",
	"ssl": "mqtts",
	"ws":  "http",
	"wss": "https",
}

type authCredsFormat struct {
	Creds map[string]CredentialEntry `toml:"creds"`
}

// LoadAuthFromData parses auth.toml. Both ["url"] at the root and
// [creds."url"] are accepted and merged.
func LoadAuthFromData(data []byte) map[string]CredentialEntry {
	result := make(map[string]CredentialEntry)

	var root map[string]CredentialEntry
	if err := toml.Unmarshal(data, &root); err == nil {
		for k, v := range root {
			if k != "creds" {
				result[k] = v
			}
		}
	}

	var creds authCredsFormat
	if err := toml.Unmarshal(data, &creds); err == nil {
		maps.Copy(result, creds.Creds)
	}

	return result
}

func normalizeScheme(scheme string) string {
	lower := strings.ToLower(scheme)
	if canonical, ok := schemeAliases[lower]; ok {
		return canonical
	}
	return lower
}

func isSchemelessKey(key string) bool {
	return !strings.Contains(key, "://")
}

// LookupAuth finds credentials for a URL. Matches are tried in order of
// exact scheme, canonical scheme (tcp://x matches mqtt://x) and finally a
// schemeless host:port key.
func LookupAuth(creds map[string]CredentialEntry, reqURL string) *CredentialEntry {
	if len(creds) == 0 {
		return nil
	}

	u, err := url.Parse(reqURL)
	if err != nil {
		log.Warn().Msgf("invalid auth request url: %s", reqURL)
		return nil
	}

	match := func(sameScheme func(defScheme string) bool) *CredentialEntry {
		for k, v := range creds {
			if isSchemelessKey(k) {
				continue
			}
			defURL, err := url.Parse(k)
			if err != nil {
				log.Error().Msgf("invalid auth config url: %s", k)
				continue
			}
			if sameScheme(defURL.Scheme) &&
				strings.EqualFold(defURL.Host, u.Host) &&
				strings.HasPrefix(u.Path, defURL.Path) {
				return &v
			}
		}
		return nil
	}

	if entry := match(func(s string) bool { return strings.EqualFold(s, u.Scheme) }); entry != nil {
		return entry
	}
	normalized := normalizeScheme(u.Scheme)
	if entry := match(func(s string) bool { return normalizeScheme(s) == normalized }); entry != nil {
		return entry
	}

	for k, v := range creds {
		if isSchemelessKey(k) && strings.EqualFold(k, u.Host) {
			return &v
		}
	}
	return nil
}
