// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"strings"

	"github.com/pkg/errors"
)

// Setting is one "key=value" pair parsed by ParseSettings.
type Setting struct {
	Key, Value string
}

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "width=608;height=608;subdivisions=32".
//
// Empty entries (e.g. a trailing ";") are ignored, and spaces around keys and values are trimmed.
// For values made only of digits and "_", the "_" is removed: it allows one to enter large numbers
// using it as a separator, like in Go. E.g.: 1_000_000 = 1000000.
//
// Settings are returned in the order given. If a key is repeated, it is an error.
func ParseSettings(settings string) ([]Setting, error) {
	var parsed []Setting
	seen := make(map[string]bool)
	for _, entry := range strings.Split(settings, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, "=")
		if !found {
			return nil, errors.Errorf("can't parse setting %q: it must be of the form \"key=value\"", entry)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, errors.Errorf("can't parse setting %q: empty key", entry)
		}
		if seen[key] {
			return nil, errors.Errorf("setting %q given more than once", key)
		}
		seen[key] = true
		if isUnderscoredNumber(value) {
			value = strings.ReplaceAll(value, "_", "")
		}
		parsed = append(parsed, Setting{Key: key, Value: value})
	}
	return parsed, nil
}

func isUnderscoredNumber(value string) bool {
	if !strings.Contains(value, "_") || strings.Trim(value, "_") == "" {
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
