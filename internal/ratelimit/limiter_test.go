// SPDX-License-Identifier: MIT

package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_GlobalBurst(t *testing.T) {
	config := Config{
		GlobalRate:      10,
		GlobalBurst:     20,
		PerDeviceRate:   100,
		PerDeviceBurst:  200,
		CleanupInterval: time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 25; i++ {
		if limiter.Allow("device-1") {
			allowed++
		}
	}

	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 frames to pass with global burst=20, got %d", allowed)
	}
}

func TestLimiter_PerDeviceBucketIsIsolated(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerDeviceRate:   5,
		PerDeviceBurst:  10,
		CleanupInterval: time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("device-a") {
			allowed++
		}
	}
	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 frames to pass for device-a with burst=10, got %d", allowed)
	}

	// A different device key has its own bucket and isn't punished by
	// device-a's flood.
	allowed2 := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("device-b") {
			allowed2++
		}
	}
	if allowed2 < 9 || allowed2 > 11 {
		t.Errorf("expected ~10 frames to pass for device-b, got %d", allowed2)
	}
}

func TestLimiter_CleanupDropsStaleBuckets(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerDeviceRate:   10,
		PerDeviceBurst:  20,
		CleanupInterval: 100 * time.Millisecond,
	}
	limiter := New(config)

	for i := 0; i < 10; i++ {
		limiter.Allow("device-" + string(rune('a'+i)))
	}

	limiter.mu.RLock()
	countBefore := len(limiter.perDevice)
	limiter.mu.RUnlock()
	if countBefore != 10 {
		t.Errorf("expected 10 per-device buckets, got %d", countBefore)
	}

	time.Sleep(150 * time.Millisecond)
	limiter.Allow("device-new")

	limiter.mu.RLock()
	countAfter := len(limiter.perDevice)
	limiter.mu.RUnlock()
	if countAfter != 1 {
		t.Errorf("expected 1 per-device bucket after cleanup, got %d", countAfter)
	}
}

func BenchmarkLimiter_Allow(b *testing.B) {
	limiter := New(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("device-1")
	}
}
