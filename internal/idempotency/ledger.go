// Package idempotency implements the write-deduplication ledger shared by
// the order and inventory services. A caller-supplied key identifies one
// logical write; retries with the same key are served the cached result
// instead of re-executing side effects.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrInProgress rejects a concurrent duplicate: another request with
	// the same key has not finished yet. Callers should back off.
	ErrInProgress = errors.New("request with this idempotency key is already being processed")

	// ErrKeyReused rejects a key whose recorded request fingerprint does
	// not match the incoming payload.
	ErrKeyReused = errors.New("idempotency key reused with a different request payload")
)

// CheckResult tells the caller how to proceed.
type CheckResult struct {
	// Fresh means no completed execution exists; the caller must run the
	// operation and mark the key completed or failed.
	Fresh bool
	// Cached result, valid when Fresh is false.
	ResultPayload    []byte
	ResultStatusCode int
}

// Ledger is the store contract. Store (MySQL) is the production
// implementation; Memory backs tests and single-process runs.
type Ledger interface {
	// Check records first sight of a key as pending, returns the cached
	// result for a completed key, fails with ErrInProgress for a pending
	// one, and re-admits a failed one.
	Check(ctx context.Context, key, serviceName, route string, payload []byte) (*CheckResult, error)

	// MarkCompleted transitions pending → completed and caches the result.
	MarkCompleted(ctx context.Context, key string, result []byte, statusCode int) error

	// MarkFailed transitions pending → failed, re-admitting future retries
	// with the same key.
	MarkFailed(ctx context.Context, key, reason string) error

	// Sweep removes settled records older than the cutoff.
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)
}

// Fingerprint hashes a request payload for key-reuse detection.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
