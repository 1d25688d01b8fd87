// Package store is the dual-tier key/value store shared by every component.
//
// Writes land in a fast primary tier (Redis or an in-process LRU) and in a
// durable tier (PostgreSQL or memory). Reads try the primary first and fall
// back to the durable tier, which is the source of truth. The primary tier may
// be disabled entirely without changing results, only latency.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// NoExpiry is returned by TTL for keys stored without an expiry.
const NoExpiry time.Duration = -1

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidTable = errors.New("invalid table")
)

// Table is a logical table of the durable tier.
type Table string

const (
	BasicTokens    Table = "basic_tokens"
	EnrichedTokens Table = "enriched_tokens"
)

// Tables lists every logical table, in cleanup order.
var Tables = []Table{BasicTokens, EnrichedTokens}

func (t Table) Valid() bool {
	return t == BasicTokens || t == EnrichedTokens
}

// Entry is one durable row. ExpiresAt is nil for entries that never expire.
type Entry struct {
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
	ExpiresAt *time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Primary is the fast tier. A ttl of zero stores without expiry.
type Primary interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Markers holds short-lived coordination keys (locks, recent results, refresh
// flags). They never reach the durable tier.
type Markers interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
}

// Durable is the source-of-truth tier. Get must not return entries expired at now.
type Durable interface {
	Get(ctx context.Context, table Table, key string, now time.Time) (*Entry, error)
	Upsert(ctx context.Context, table Table, entry Entry) error
	DeleteExpired(ctx context.Context, table Table, now time.Time) (int64, error)
	Close()
}

type Store struct {
	primary Primary
	durable Durable
	clock   clock.Clock
	logger  *zap.Logger
}

// New builds a store. primary may be nil.
func New(primary Primary, durable Durable, clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		primary: primary,
		durable: durable,
		clock:   clk,
		logger:  logger.Named("store"),
	}
}

func primaryKey(table Table, key string) string {
	return string(table) + ":" + key
}

// Get returns the raw JSON stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, table Table, key string) ([]byte, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	if s.primary != nil {
		val, err := s.primary.Get(ctx, primaryKey(table, key))
		switch {
		case err == nil:
			primaryHits.Inc()
			return val, nil
		case !errors.Is(err, ErrNotFound):
			s.logger.Warn("primary tier read failed",
				zap.String("table", string(table)),
				zap.String("key", key),
				zap.Error(err))
		}
		primaryMisses.Inc()
	}

	entry, err := s.durable.Get(ctx, table, key, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			durableMisses.Inc()
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, key, err)
	}
	durableHits.Inc()

	return entry.Payload, nil
}

// GetJSON decodes the value under key into v. It reports false when missing.
func (s *Store) GetJSON(ctx context.Context, table Table, key string, v any) (bool, error) {
	data, err := s.Get(ctx, table, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", table, key, err)
	}
	return true, nil
}

// Set marshals v as JSON and writes it to both tiers.
func (s *Store) Set(ctx context.Context, table Table, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, key, err)
	}
	return s.SetRaw(ctx, table, key, data, ttl)
}

// SetRaw writes an already encoded JSON document. A ttl of zero never expires.
// Primary tier failures are logged and swallowed; durable failures are returned.
func (s *Store) SetRaw(ctx context.Context, table Table, key string, data []byte, ttl time.Duration) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if !json.Valid(data) {
		return fmt.Errorf("refusing to store invalid JSON under %s/%s", table, key)
	}

	if s.primary != nil {
		if err := s.primary.Set(ctx, primaryKey(table, key), data, ttl); err != nil {
			primaryWriteFailures.Inc()
			s.logger.Warn("primary tier write failed",
				zap.String("table", string(table)),
				zap.String("key", key),
				zap.Error(err))
		}
	}

	now := s.clock.Now()
	entry := Entry{
		Key:       key,
		Payload:   data,
		CreatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	if err := s.durable.Upsert(ctx, table, entry); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, table Table, key string) (bool, error) {
	_, err := s.Get(ctx, table, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TTL returns the remaining lifetime of key, NoExpiry, or ErrNotFound.
func (s *Store) TTL(ctx context.Context, table Table, key string) (time.Duration, error) {
	if !table.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	if s.primary != nil {
		ttl, err := s.primary.TTL(ctx, primaryKey(table, key))
		if err == nil {
			return ttl, nil
		}
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("primary tier ttl failed", zap.String("key", key), zap.Error(err))
		}
	}

	now := s.clock.Now()
	entry, err := s.durable.Get(ctx, table, key, now)
	if err != nil {
		return 0, err
	}
	if entry.ExpiresAt == nil {
		return NoExpiry, nil
	}
	return entry.ExpiresAt.Sub(now), nil
}

// CleanupExpired physically removes durable rows that are already logically
// expired, in every table. Running it twice in a row is a no-op the second time.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	var total int64
	for _, table := range Tables {
		n, err := s.durable.DeleteExpired(ctx, table, now)
		if err != nil {
			return total, fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		total += n
	}

	s.logger.Info("expired entries removed", zap.Int64("deleted", total))
	return total, nil
}

func (s *Store) Close() {
	s.durable.Close()
}
