// Package ratelimit 實作單連接的令牌桶限流。
//
// 每條 WebSocket 連接持有一個桶，只由該連接的讀取 goroutine 使用，
// 但仍以 mutex 保護以便監控端讀取。
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶
//
// 演算法：
//  1. 固定容量的桶，以固定速率填充令牌
//  2. 訊息到達時嘗試取出一個令牌
//  3. 有令牌則放行，無令牌則丟棄
//
// nil 桶視為不限流。
type TokenBucket struct {
	capacity   int64     // 桶容量（最大突發量）
	tokens     int64     // 當前令牌數
	refillRate int64     // 每秒填充令牌數
	lastRefill time.Time // 上次填充時間
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 建立令牌桶，capacity <= 0 時返回 nil（不限流）
//
//	limiter := NewTokenBucket(30, 15) // 突發 30 條，平均每秒 15 條
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	if capacity <= 0 {
		return nil
	}
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity, // 初始化時桶是滿的
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow 嘗試取出一個令牌
func (tb *TokenBucket) Allow() bool {
	if tb == nil {
		return true
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int64(elapsed.Seconds() * float64(tb.refillRate))

	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Tokens 返回當前令牌數（用於監控）
func (tb *TokenBucket) Tokens() int64 {
	if tb == nil {
		return 0
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens
}
