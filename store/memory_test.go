package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/rushteam/movierec/core"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if _, err := ms.Get(ctx, "missing"); !core.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want not-found", err)
	}

	if err := ms.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get() = %s, %v, want v, nil", got, err)
	}

	if err := ms.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ms.Get(ctx, "k"); !core.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not-found", err)
	}
}

func TestMemoryStore_SetClearsStaleExpiry(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if err := ms.Set(ctx, "k", []byte("v1"), 60); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	// 覆盖写不带 TTL：key 变为永久，旧的过期时间必须清除
	if err := ms.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ms.mu.RLock()
	_, hasExpiry := ms.ttl["k"]
	ms.mu.RUnlock()
	if hasExpiry {
		t.Error("stale expiry survived a non-TTL overwrite, cleanup would drop the key")
	}

	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Errorf("Get() = %s, %v, want v2, nil", got, err)
	}
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	ms := NewMemoryStore()
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestMemoryStore_BatchGet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	_ = ms.Set(ctx, "a", []byte("1"))
	_ = ms.Set(ctx, "b", []byte("2"))

	got, err := ms.BatchGet(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("BatchGet() error = %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("BatchGet() = %v, want a=1 b=2", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key must be absent from result")
	}
}

func TestMemoryStore_ZSet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	for member, score := range map[string]float64{"1": 10, "2": 30, "3": 20, "4": 30} {
		if err := ms.ZAdd(ctx, "board", score, member); err != nil {
			t.Fatalf("ZAdd() error = %v", err)
		}
	}

	// score 降序，同分按 member 升序
	got, err := ms.ZRange(ctx, "board", 0, 2)
	if err != nil {
		t.Fatalf("ZRange() error = %v", err)
	}
	if want := []string{"2", "4", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ZRange() = %v, want %v", got, want)
	}

	score, err := ms.ZScore(ctx, "board", "3")
	if err != nil || score != 20 {
		t.Errorf("ZScore() = %v, %v, want 20, nil", score, err)
	}
	if _, err := ms.ZScore(ctx, "board", "99"); !core.IsNotFound(err) {
		t.Errorf("ZScore(missing) error = %v, want not-found", err)
	}
}

func TestMemoryStore_Hash(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if err := ms.HSet(ctx, "h", "f1", []byte("v1")); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}
	got, err := ms.HGet(ctx, "h", "f1")
	if err != nil || string(got) != "v1" {
		t.Errorf("HGet() = %s, %v, want v1, nil", got, err)
	}
	if _, err := ms.HGet(ctx, "h", "f2"); !core.IsNotFound(err) {
		t.Errorf("HGet(missing field) error = %v, want not-found", err)
	}

	_ = ms.HSet(ctx, "h", "f2", []byte("v2"))
	all, err := ms.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	if len(all) != 2 || string(all["f1"]) != "v1" || string(all["f2"]) != "v2" {
		t.Errorf("HGetAll() = %v, want f1=v1 f2=v2", all)
	}

	// 不同 hash key 之间隔离
	other, err := ms.HGetAll(ctx, "other")
	if err != nil || len(other) != 0 {
		t.Errorf("HGetAll(other) = %v, %v, want empty", other, err)
	}
}

func TestMemoryStore_HIncrBy(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	got, err := ms.HIncrBy(ctx, "counts", "1", 1)
	if err != nil || got != 1 {
		t.Errorf("HIncrBy() = %v, %v, want 1, nil", got, err)
	}
	got, err = ms.HIncrBy(ctx, "counts", "1", 5)
	if err != nil || got != 6 {
		t.Errorf("HIncrBy() = %v, %v, want 6, nil", got, err)
	}

	raw, err := ms.HGet(ctx, "counts", "1")
	if err != nil || string(raw) != "6" {
		t.Errorf("HGet() = %s, %v, want 6, nil", raw, err)
	}
}
