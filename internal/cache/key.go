package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Key builds a deterministic cache key from the resource, the action,
// and the request parameters. Parameter order does not affect the key.
func Key(resource, action string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte('\x00')
	b.WriteString(action)

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			b.WriteByte('\x00')
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(params[name])
		}
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}
