package cache

import (
	"context"
	"log/slog"
)

// SafeDelete deletes cache keys and logs failures without propagating them.
// Invalidation errors never fail the write that triggered them.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if helper == nil || len(keys) == 0 {
		return
	}
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

// SafeInvalidatePattern invalidates a key pattern and logs failures.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if helper == nil || pattern == "" {
		return
	}
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.Warn("cache pattern invalidation failed", "pattern", pattern, "error", err)
	}
}
