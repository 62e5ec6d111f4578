// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package credentials loads completion-service API keys from a plain-text
// file, one key per line. Multiple keys partition the service's rate limit:
// the orchestrator assigns documents round-robin and caps in-flight requests
// per key.
package credentials

import (
	"fmt"
	"os"
	"strings"
)

// Load reads the key file at path and returns the non-empty, non-comment
// lines in order. An empty result is a run-level configuration error for the
// callers, so Load reports it as one.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %s: %w", path, err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no credentials found in %s", path)
	}
	return keys, nil
}
