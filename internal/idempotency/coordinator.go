// Package idempotency deduplicates mutating requests that carry a client request id.
// Concurrent requests with the same id converge on a single execution: one holds a
// shared lock and runs the operation, the rest wait and then observe its result.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dineflow/internal/domain"
	"dineflow/internal/store"
)

const (
	lockPrefix   = "idem:lock:"
	resultPrefix = "idem:result:"
)

// Request identifies one idempotent call
type Request struct {
	RequestID    string
	Endpoint     string
	Method       string
	UserID       string
	RestaurantID string
}

// Key deterministic hash of every identifying field
func (r Request) Key() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		r.UserID, r.RestaurantID, r.RequestID, r.Endpoint, r.Method,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// Result outcome of Execute
type Result[T any] struct {
	Data        T
	IsFromCache bool
	RequestID   string
}

// Lookup finds an already committed result; found is false when there is none.
type Lookup[T any] func(ctx context.Context) (value T, found bool, err error)

type Config struct {
	LockTTL    time.Duration
	ResultTTL  time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

func DefaultConfig() Config {
	return Config{
		LockTTL:    30 * time.Second,
		ResultTTL:  24 * time.Hour,
		RetryDelay: 100 * time.Millisecond,
		MaxRetries: 5,
	}
}

type Coordinator struct {
	kv     store.KV
	cfg    Config
	logger *zap.Logger
}

func NewCoordinator(kv store.KV, cfg Config, logger *zap.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Coordinator{kv: kv, cfg: cfg, logger: logger}
}

// Execute runs op at most once per request key.
//
// lookup is the durable check for a committed result (for orders, a query on the
// unique request_id column). When lookup is nil the cached copy in the KV store is
// used instead. A request without a RequestID bypasses the coordinator.
func Execute[T any](ctx context.Context, c *Coordinator, req Request, lookup Lookup[T], op func(ctx context.Context) (T, error)) (*Result[T], error) {
	if req.RequestID == "" {
		data, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return &Result[T]{Data: data}, nil
	}

	key := req.Key()
	if lookup == nil {
		lookup = cachedLookup[T](c, key)
	}

	for attempt := 0; ; attempt++ {
		if v, found, err := lookup(ctx); err != nil {
			return nil, err
		} else if found {
			return &Result[T]{Data: v, IsFromCache: true, RequestID: req.RequestID}, nil
		}

		token := uuid.NewString()
		acquired, err := c.kv.SetNX(ctx, lockPrefix+key, token, c.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire idempotency lock: %w", err)
		}
		if acquired {
			return runLocked(ctx, c, req, key, token, lookup, op)
		}

		if attempt >= c.cfg.MaxRetries {
			c.logger.Warn("Idempotency lock wait exhausted",
				zap.String("request_id", req.RequestID),
				zap.String("endpoint", req.Endpoint),
				zap.Int("attempts", attempt+1),
			)
			return nil, fmt.Errorf("%w: request %s is still in progress", domain.ErrLockTimeout, req.RequestID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

func runLocked[T any](ctx context.Context, c *Coordinator, req Request, key, token string, lookup Lookup[T], op func(ctx context.Context) (T, error)) (*Result[T], error) {
	defer func() {
		if _, err := c.kv.CompareAndDelete(context.WithoutCancel(ctx), lockPrefix+key, token); err != nil {
			c.logger.Warn("Failed to release idempotency lock",
				zap.String("request_id", req.RequestID),
				zap.Error(err),
			)
		}
	}()

	// the previous holder may have committed between our lookup and SetNX
	if v, found, err := lookup(ctx); err != nil {
		return nil, err
	} else if found {
		return &Result[T]{Data: v, IsFromCache: true, RequestID: req.RequestID}, nil
	}

	data, err := op(ctx)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(data); err != nil {
		c.logger.Warn("Failed to encode idempotent result", zap.String("request_id", req.RequestID), zap.Error(err))
	} else if err := c.kv.Set(context.WithoutCancel(ctx), resultPrefix+key, string(b), c.cfg.ResultTTL); err != nil {
		c.logger.Warn("Failed to cache idempotent result", zap.String("request_id", req.RequestID), zap.Error(err))
	}
	return &Result[T]{Data: data, RequestID: req.RequestID}, nil
}

func cachedLookup[T any](c *Coordinator, key string) Lookup[T] {
	return func(ctx context.Context) (T, bool, error) {
		var zero T
		raw, err := c.kv.Get(ctx, resultPrefix+key)
		if errors.Is(err, store.ErrMiss) {
			return zero, false, nil
		}
		if err != nil {
			return zero, false, fmt.Errorf("failed to read idempotent result: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return zero, false, fmt.Errorf("failed to decode idempotent result: %w", err)
		}
		return v, true, nil
	}
}
