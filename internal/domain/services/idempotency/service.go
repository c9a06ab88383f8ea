// Package idempotency implements the two-tier idempotency store: a cache
// fast path in front of the authoritative idempotency_keys rows. Cache
// loss degrades latency, never correctness.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

const cacheKeyPrefix = "idempotency:"

// Service checks and records idempotency keys.
type Service struct {
	store  repositories.LedgerStore
	cache  cache.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewService creates an idempotency service with the given record TTL.
func NewService(store repositories.LedgerStore, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{store: store, cache: c, ttl: ttl, logger: log}
}

// TTL returns the configured record lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// HashRequest computes a stable SHA-256 over the canonical JSON encoding
// of the request payload. The payload round-trips through a map so field
// order never changes the hash.
func HashRequest(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", domainerrors.InternalError("encode request for hashing", err)
	}

	var canonical interface{}
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return "", domainerrors.InternalError("canonicalize request for hashing", err)
	}
	canonicalRaw, err := json.Marshal(canonical)
	if err != nil {
		return "", domainerrors.InternalError("encode canonical request", err)
	}

	sum := sha256.Sum256(canonicalRaw)
	return hex.EncodeToString(sum[:]), nil
}

// Check looks the key up, cache first then the durable rows. A durable
// hit repopulates the cache with the record's remaining TTL. Returns
// (nil, nil) when the key is unseen or expired.
func (s *Service) Check(ctx context.Context, key string) (*entities.IdempotencyRecord, error) {
	var cached entities.IdempotencyRecord
	if s.cache.GetJSON(ctx, cacheKeyPrefix+key, &cached) {
		if !cached.Expired(time.Now().UTC()) {
			metrics.IdempotencyLookupsTotal.WithLabelValues("cache").Inc()
			return &cached, nil
		}
		s.cache.Delete(ctx, cacheKeyPrefix+key)
	}

	record, err := s.store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		metrics.IdempotencyLookupsTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.IdempotencyLookupsTotal.WithLabelValues("store").Inc()

	if remaining := time.Until(record.ExpiresAt); remaining > 0 {
		s.cache.SetJSON(ctx, cacheKeyPrefix+key, record, remaining)
	}
	return record, nil
}

// Record stages the durable idempotency row inside the caller's unit of
// work so it commits atomically with the transaction it protects.
func (s *Service) Record(ctx context.Context, uow repositories.UnitOfWork, record *entities.IdempotencyRecord) error {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.ExpiresAt = now.Add(s.ttl)
	return uow.CreateIdempotencyRecord(ctx, record)
}

// CacheRecord writes the committed record to the cache fast path. Called
// after commit; failures are logged and ignored.
func (s *Service) CacheRecord(ctx context.Context, record *entities.IdempotencyRecord) {
	remaining := time.Until(record.ExpiresAt)
	if remaining <= 0 {
		return
	}
	if !s.cache.SetJSON(ctx, cacheKeyPrefix+record.Key, record, remaining) {
		s.logger.Warn("idempotency cache write failed", "key", record.Key)
	}
}

// ValidateKey checks the key shape before any storage work.
func ValidateKey(key string) error {
	if key == "" {
		return domainerrors.ValidationError("idempotency_key", "idempotency key is required")
	}
	if len(key) > 255 {
		return domainerrors.ValidationError("idempotency_key",
			fmt.Sprintf("idempotency key exceeds 255 characters: %d", len(key)))
	}
	return nil
}
