package auth

import (
	"fmt"
	"strings"
)

// credential is one "identity:secret" pair from a config string.
type credential struct {
	identity string
	secret   string
}

// parseCredentials splits a comma-separated list of "left:right" entries.
// Only the first colon separates the halves. Blank entries are skipped;
// an empty result is an error. kind prefixes error messages.
func parseCredentials(kind, config string) ([]credential, error) {
	trimmed := strings.TrimSpace(config)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: config must not be empty", kind)
	}

	var creds []credential
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		left, right, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%s: invalid entry format, expected a colon", kind)
		}

		left = strings.TrimSpace(left)
		right = strings.TrimSpace(right)
		if left == "" || right == "" {
			return nil, fmt.Errorf("%s: entry halves must not be empty", kind)
		}

		creds = append(creds, credential{identity: left, secret: right})
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("%s: no valid entries found", kind)
	}

	return creds, nil
}
