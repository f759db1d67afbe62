package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Store is a string key/value store with per-entry expiry.
//
// A ttl <= 0 stores the entry without expiry.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GroupKeyPrefix namespaces group ID entries.
const GroupKeyPrefix = "sendernet:group:"

// GroupKey returns the cache key for a logical group name: the prefix plus the hex md5 of the name.
func GroupKey(name string) string {
	sum := md5.Sum([]byte(name))
	return GroupKeyPrefix + hex.EncodeToString(sum[:])
}

// IsGroupKey reports whether key was produced by [GroupKey].
func IsGroupKey(key string) bool {
	return strings.HasPrefix(key, GroupKeyPrefix)
}
