package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultDenylistPrefix = "libauth:jti"

// RedisDenylist answers token revocation lookups from Redis. A token id is
// revoked while the key <prefix>:<jti> exists. The denylist never writes;
// whatever revokes tokens owns the keys and their TTLs.
type RedisDenylist struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDenylist wires a lookup on client.
func NewRedisDenylist(client redis.UniversalClient, prefix string) *RedisDenylist {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultDenylistPrefix
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

// IsRevoked implements jwt.RevocationChecker.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if d == nil || d.client == nil {
		return false, fmt.Errorf("denylist not configured")
	}
	n, err := d.client.Exists(ctx, d.prefix+":"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists jti: %w", err)
	}
	return n > 0, nil
}
