// Package cache provides the short-TTL lookup cache for verification
// results. The cache is purely an optimization: a disabled or always-miss
// cache yields identical verification outcomes, never different business
// decisions.
package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"platewatch/internal/consent/models"
)

// Cache stores verification results keyed by subject identity and the
// requested consent types.
type Cache interface {
	// Get returns the cached result, or (nil, nil) on a miss.
	Get(ctx context.Context, subject models.Subject, types []models.ConsentType) (*models.VerificationResult, error)

	// Set stores a result for the given TTL.
	Set(ctx context.Context, subject models.Subject, types []models.ConsentType, result *models.VerificationResult, ttl time.Duration) error

	// Invalidate removes every entry for the subject, covering both the
	// user-id-keyed and the ip-keyed identities.
	Invalidate(ctx context.Context, subject models.Subject) error
}

const keyPrefix = "consent:verify:"

// entryKey builds a deterministic key: type order in the request must not
// fragment the cache.
func entryKey(identity string, types []models.ConsentType) string {
	names := models.TypeNames(types)
	sort.Strings(names)
	return keyPrefix + identity + ":" + strings.Join(names, ",")
}

// identityPrefixes returns the key prefixes Invalidate must clear for a
// subject. A verification may have been cached under the user id or under
// the bare IP, so both are swept.
func identityPrefixes(subject models.Subject) []string {
	var prefixes []string
	if subject.UserID != "" {
		prefixes = append(prefixes, keyPrefix+subject.UserID+":")
	}
	if subject.IPAddress != "" {
		prefixes = append(prefixes, keyPrefix+subject.IPAddress+":")
	}
	return prefixes
}
