package multipay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ReceiptCache provides idempotency for settlement calls by caching
// successful receipts and tracking in-flight requests. A client retrying
// after a timeout gets the original receipt back instead of settling twice.
type ReceiptCache struct {
	mu       sync.Mutex
	entries  map[string]receiptEntry
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

type receiptEntry struct {
	receipt *SettlementReceipt
	expiry  time.Time
}

// NewReceiptCache creates a receipt cache with the specified TTL.
func NewReceiptCache(ttl time.Duration) *ReceiptCache {
	return &ReceiptCache{
		entries:  make(map[string]receiptEntry),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// ReceiptKey derives a cache key from the raw settlement request bytes.
func ReceiptKey(requestBytes []byte) string {
	hash := sha256.Sum256(requestBytes)
	return hex.EncodeToString(hash[:])
}

// ReceiptStatus represents the result of checking the cache.
type ReceiptStatus int

const (
	// ReceiptNotFound means no cached receipt and no in-flight request.
	ReceiptNotFound ReceiptStatus = iota
	// ReceiptCached means a cached receipt was found.
	ReceiptCached
	// ReceiptInFlight means another request is currently settling this key.
	ReceiptInFlight
)

// CheckAndMark atomically checks the cache and marks the key in-flight when
// this request should proceed. The returned channel is the done channel to
// pass to Complete or Fail (ReceiptNotFound), or the channel to wait on
// (ReceiptInFlight).
func (c *ReceiptCache) CheckAndMark(key string) (ReceiptStatus, *SettlementReceipt, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		if time.Now().Before(entry.expiry) {
			return ReceiptCached, entry.receipt, nil
		}
		delete(c.entries, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return ReceiptInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return ReceiptNotFound, nil, done
}

// WaitForReceipt waits for an in-flight request to finish, respecting
// context cancellation. Returns nil when the in-flight request failed.
func (c *ReceiptCache) WaitForReceipt(ctx context.Context, key string, done chan struct{}) (*SettlementReceipt, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached receipt for key, or nil if absent or expired.
func (c *ReceiptCache) Get(key string) *SettlementReceipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, key)
		return nil
	}
	return entry.receipt
}

// Complete caches the receipt and signals any waiting requests.
func (c *ReceiptCache) Complete(key string, receipt *SettlementReceipt, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = receiptEntry{receipt: receipt, expiry: time.Now().Add(c.ttl)}
	delete(c.inFlight, key)
	close(done)

	c.evictExpiredLocked()
}

// Fail removes the in-flight marker without caching, so the settlement can
// be retried.
func (c *ReceiptCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

func (c *ReceiptCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}
