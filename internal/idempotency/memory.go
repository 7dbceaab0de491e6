package idempotency

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Ledger with the same semantics as Store. It backs
// tests and local single-instance runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Check(ctx context.Context, key, serviceName, route string, payload []byte) (*CheckResult, error) {
	fingerprint := Fingerprint(payload)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		now := time.Now()
		m.records[key] = &Record{
			Key:                key,
			ServiceName:        serviceName,
			Route:              route,
			RequestFingerprint: fingerprint,
			Status:             StatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return &CheckResult{Fresh: true}, nil
	}

	if rec.RequestFingerprint != fingerprint {
		return nil, ErrKeyReused
	}

	switch rec.Status {
	case StatusCompleted:
		return &CheckResult{
			Fresh:            false,
			ResultPayload:    rec.ResultPayload,
			ResultStatusCode: rec.ResultStatusCode,
		}, nil
	case StatusPending:
		return nil, ErrInProgress
	default: // failed, re-admit
		rec.Status = StatusPending
		rec.FailureReason = ""
		rec.UpdatedAt = time.Now()
		return &CheckResult{Fresh: true}, nil
	}
}

func (m *Memory) MarkCompleted(ctx context.Context, key string, result []byte, statusCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok && rec.Status == StatusPending {
		rec.Status = StatusCompleted
		rec.ResultPayload = result
		rec.ResultStatusCode = statusCode
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok && rec.Status == StatusPending {
		rec.Status = StatusFailed
		rec.FailureReason = reason
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Memory) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, rec := range m.records {
		if rec.Status != StatusPending && rec.UpdatedAt.Before(olderThan) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}
