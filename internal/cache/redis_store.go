package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldops/voicedispatch/internal/clock"
	"github.com/fieldops/voicedispatch/internal/domain"
)

const redisKeyPrefix = "voicedispatch:call:"

// RedisStore is a Store backed by a shared Redis instance, so that a
// webhook delivered to one replica is visible to the DirectCaller polling
// loop running on another. Entries expire via Redis TTL rather than a
// background reaper; Merge and UpdateFetchStatus are read-modify-write
// rather than atomic, which is acceptable here because both operations
// are idempotent with respect to the eventual terminal state they
// converge on.
type RedisStore struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

// NewRedisStore builds a RedisStore against an already-constructed client;
// callers own the client's lifecycle (Close is invoked from Stop).
func NewRedisStore(client *redis.Client, cfg Config, clk clock.Clock, logger *zap.Logger) *RedisStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &RedisStore{
		client: client,
		cfg:    cfg,
		clock:  clk,
		logger: logger.Named("cache.redis"),
	}
}

func redisKey(callID string) string {
	return redisKeyPrefix + callID
}

func (s *RedisStore) get(ctx context.Context, callID string) (*domain.CachedEntry, bool) {
	raw, err := s.client.Get(ctx, redisKey(callID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("redis get failed", zap.String("call_id", callID), zap.Error(err))
		}
		return nil, false
	}
	var entry domain.CachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("redis entry unmarshal failed", zap.String("call_id", callID), zap.Error(err))
		return nil, false
	}
	return &entry, true
}

func (s *RedisStore) put(ctx context.Context, callID string, entry *domain.CachedEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("redis entry marshal failed", zap.String("call_id", callID), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, redisKey(callID), raw, s.cfg.TTL).Err(); err != nil {
		s.logger.Warn("redis set failed", zap.String("call_id", callID), zap.Error(err))
	}
}

// Get retrieves the entry for callID.
func (s *RedisStore) Get(callID string) (*domain.CachedEntry, bool) {
	return s.get(context.Background(), callID)
}

// Set creates or replaces the entry for callID, resetting its TTL.
func (s *RedisStore) Set(callID string, entry *domain.CachedEntry) {
	ctx := context.Background()
	now := s.clock.Now()

	entry.CallID = callID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(s.cfg.TTL)
	if entry.FetchStatus == "" {
		entry.FetchStatus = domain.FetchStatusPending
	}

	s.put(ctx, callID, entry)
}

// Merge folds an incoming observation into the existing entry, matching
// the in-memory Store's field-wise merge semantics.
func (s *RedisStore) Merge(callID string, incoming *domain.CachedEntry) *domain.CachedEntry {
	ctx := context.Background()
	now := s.clock.Now()

	existing, ok := s.get(ctx, callID)
	if !ok {
		incoming.CallID = callID
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		incoming.ExpiresAt = now.Add(s.cfg.TTL)
		incoming.FetchStatus = domain.FetchStatusComplete
		s.put(ctx, callID, incoming)
		return incoming
	}

	if incoming.Status != "" {
		existing.Status = incoming.Status
	}
	if len(incoming.Transcript) > len(existing.Transcript) {
		existing.Transcript = incoming.Transcript
	}
	if len(incoming.TranscriptEntries) > len(existing.TranscriptEntries) {
		existing.TranscriptEntries = incoming.TranscriptEntries
	}
	existing.Data = mergeData(existing.Data, incoming.Data)
	existing.FetchStatus = domain.FetchStatusComplete
	existing.UpdatedAt = now
	existing.ExpiresAt = now.Add(s.cfg.TTL)

	s.put(ctx, callID, existing)
	return existing
}

// UpdateFetchStatus sets the fetch-completeness marker for an entry,
// creating it if it doesn't exist yet.
func (s *RedisStore) UpdateFetchStatus(callID string, status domain.FetchStatus) {
	ctx := context.Background()
	now := s.clock.Now()

	entry, ok := s.get(ctx, callID)
	if !ok {
		entry = &domain.CachedEntry{CallID: callID, CreatedAt: now}
	}
	entry.FetchStatus = status
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(s.cfg.TTL)
	s.put(ctx, callID, entry)
}

// Delete removes an entry outright.
func (s *RedisStore) Delete(callID string) {
	if err := s.client.Del(context.Background(), redisKey(callID)).Err(); err != nil {
		s.logger.Warn("redis delete failed", zap.String("call_id", callID), zap.Error(err))
	}
}

// Stats scans the keyspace for live entries. This is an O(n) SCAN rather
// than a maintained counter: acceptable for an admin/debug endpoint, not
// called on any request hot path.
func (s *RedisStore) Stats() Stats {
	ctx := context.Background()
	stats := Stats{ByStatus: make(map[domain.FetchStatus]int)}

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		callID := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		entry, ok := s.get(ctx, callID)
		if !ok {
			continue
		}
		stats.Size++
		stats.ByStatus[entry.FetchStatus]++
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("redis scan failed", zap.Error(err))
	}
	return stats
}

// Stop closes the underlying Redis client.
func (s *RedisStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("redis client close failed", zap.Error(err))
	}
}

// NewRedisClient builds a go-redis client from an address with fixed dial,
// read and write timeouts; entry TTLs are not part of the client.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping verifies connectivity to the configured Redis instance.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
