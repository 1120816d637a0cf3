package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupCache(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheHelper(client, "test:"), mr
}

type cachedGroup struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func TestCacheHelper_SetGet(t *testing.T) {
	helper, _ := setupCache(t)
	ctx := context.Background()

	want := cachedGroup{ID: 1, Name: "physics"}
	if err := helper.Set(ctx, "group:1", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedGroup
	if err := helper.Get(ctx, "group:1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("Get returned %+v, want %+v", got, want)
	}
}

func TestCacheHelper_GetMissing(t *testing.T) {
	helper, _ := setupCache(t)

	var got cachedGroup
	err := helper.Get(context.Background(), "group:missing", &got)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := setupCache(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "group:1", cachedGroup{ID: 1}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := helper.Delete(ctx, "group:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err := helper.Exists(ctx, "group:1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("key should be gone after Delete")
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, _ := setupCache(t)
	ctx := context.Background()

	for _, key := range []string{"group:1", "group:1:members", "group:2"} {
		if err := helper.Set(ctx, key, cachedGroup{}, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "group:1*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	for key, want := range map[string]bool{
		"group:1":         false,
		"group:1:members": false,
		"group:2":         true,
	} {
		exists, err := helper.Exists(ctx, key)
		if err != nil {
			t.Fatalf("Exists(%s) failed: %v", key, err)
		}
		if exists != want {
			t.Errorf("Exists(%s) = %v, want %v", key, exists, want)
		}
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper, _ := setupCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedGroup{ID: 9, Name: "chemistry"}, nil
	}

	var first cachedGroup
	if err := helper.CacheOrExecute(ctx, "group:9", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one fetch on miss, got %d", calls)
	}
	if first.Name != "chemistry" {
		t.Errorf("fetched value %+v", first)
	}

	// The async cache fill races the second call; wait for the key.
	deadline := time.Now().Add(2 * time.Second)
	for {
		exists, err := helper.Exists(ctx, "group:9")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache was never populated after miss")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var second cachedGroup
	if err := helper.CacheOrExecute(ctx, "group:9", &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected cache hit to skip fetch, fetch ran %d times", calls)
	}
	if second != first {
		t.Errorf("cache hit returned %+v, want %+v", second, first)
	}
}

func TestCacheHelper_NilClient(t *testing.T) {
	helper := NewCacheHelper(nil, "test:")
	ctx := context.Background()

	var got cachedGroup
	if err := helper.Get(ctx, "k", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get with nil client = %v, want ErrCacheNotAvailable", err)
	}

	// Cache-aside must still serve data when Redis is down.
	if err := helper.CacheOrExecute(ctx, "k", &got, time.Minute, func() (interface{}, error) {
		return cachedGroup{ID: 5}, nil
	}); err != nil {
		t.Fatalf("CacheOrExecute with nil client failed: %v", err)
	}
	if got.ID != 5 {
		t.Errorf("expected fetched value, got %+v", got)
	}
}

func TestCacheManager_InvalidateGroup(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Group.Set(ctx, "id:3", cachedGroup{ID: 3}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cm.Member.Set(ctx, "3:u1", cachedGroup{}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cm.InvalidateGroup(ctx, 3)

	if exists, _ := cm.Group.Exists(ctx, "id:3"); exists {
		t.Error("group cache entry should be invalidated")
	}
	if exists, _ := cm.Member.Exists(ctx, "3:u1"); exists {
		t.Error("member cache entry should be invalidated")
	}
}
