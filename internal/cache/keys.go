package cache

import "strings"

// Key composes a cache key from a literal prefix, the query shape and
// every parameter that affects the result. Parts are joined with ':' so
// distinct parameter sets never collide and tier-1 pattern invalidation
// can target a prefix.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// OwnerPattern is the tier-1 glob covering every key scoped to a user.
func OwnerPattern(prefix, ownerID string) string {
	return prefix + ":user:" + ownerID + ":*"
}
