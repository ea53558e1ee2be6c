package ratelimit

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes comment text for duplicate detection. Case and
// whitespace runs are ignored so trivially reformatted text still counts
// as the same content.
func Fingerprint(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Join(strings.Fields(normalized), " ")
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}
