package statestore

import (
	"context"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("缺失键应返回 ok=false 且无错误: ok=%v err=%v", ok, err)
	}

	if err := store.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put 不应失败: %v", err)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v1" {
		t.Fatalf("读回值不正确: %q ok=%v err=%v", value, ok, err)
	}

	// Returned slice must be a copy, not the stored one.
	value[0] = 'X'
	again, _, _ := store.Get(ctx, "k")
	if string(again) != "v1" {
		t.Fatalf("Get 应返回副本: %q", again)
	}

	if err := store.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("覆盖写入不应失败: %v", err)
	}
	again, _, _ = store.Get(ctx, "k")
	if string(again) != "v2" {
		t.Fatalf("覆盖后读回值应为 v2: %q", again)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete 不应失败: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("删除后键不应存在")
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("删除缺失键不应报错: %v", err)
	}
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Put(ctx, "a", []byte("1"))
	_ = store.Put(ctx, "b", []byte("2"))
	if store.Len() != 2 {
		t.Fatalf("应有 2 个键, 实际 %d", store.Len())
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear 不应失败: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Clear 后应为空, 实际 %d", store.Len())
	}
}
