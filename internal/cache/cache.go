// Package cache memoizes completed analyses in Redis for a bounded time.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
)

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "analysis:"
)

// ResultCache stores analysis results by request key.
type ResultCache interface {
	Get(ctx context.Context, key string) (uci.Result, bool, error)
	Set(ctx context.Context, key string, res uci.Result) error
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL and checks the connection.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type payload struct {
	BestMove  string   `json:"best_move"`
	Ponder    string   `json:"ponder,omitempty"`
	EvalKind  string   `json:"eval_kind"`
	EvalValue int      `json:"eval_value"`
	Depth     int      `json:"depth,omitempty"`
	PV        []string `json:"pv,omitempty"`
}

func (c *RedisCache) Get(ctx context.Context, key string) (uci.Result, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return uci.Result{}, false, nil
	}
	if err != nil {
		return uci.Result{}, false, err
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return uci.Result{}, false, fmt.Errorf("decode cached analysis: %w", err)
	}
	return p.result(), true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res uci.Result) error {
	raw, err := json.Marshal(toPayload(res))
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func toPayload(res uci.Result) payload {
	p := payload{
		BestMove:  res.BestMove,
		Ponder:    res.Ponder,
		EvalValue: res.Evaluation.Value,
		Depth:     res.Depth,
		PV:        res.PV,
	}
	switch res.Evaluation.Kind {
	case uci.EvalCentipawns:
		p.EvalKind = "cp"
	case uci.EvalMate:
		p.EvalKind = "mate"
	}
	return p
}

func (p payload) result() uci.Result {
	res := uci.Result{BestMove: p.BestMove, Ponder: p.Ponder, Depth: p.Depth, PV: p.PV}
	switch p.EvalKind {
	case "cp":
		res.Evaluation = uci.Centipawns(p.EvalValue)
	case "mate":
		res.Evaluation = uci.MateIn(p.EvalValue)
	}
	return res
}

// Key derives the cache key for a request.
func Key(req chess.Request) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(req.Position))
	sb.WriteByte('|')
	sb.WriteString(strings.Join(req.Moves, " "))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(req.TimeBudget.Milliseconds(), 10))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(req.Depth))
	sum := sha256.Sum256([]byte(sb.String()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// CachedAnalyzer serves repeated requests from a ResultCache. Only successful
// analyses are stored, and cache failures never fail a request.
type CachedAnalyzer struct {
	next  chess.PositionAnalyzer
	cache ResultCache
	log   *zap.Logger
}

func NewCachedAnalyzer(next chess.PositionAnalyzer, cache ResultCache, log *zap.Logger) *CachedAnalyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedAnalyzer{next: next, cache: cache, log: log}
}

func (c *CachedAnalyzer) Analyze(ctx context.Context, req chess.Request) (uci.Result, error) {
	key := Key(req)
	if res, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("analysis cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		c.log.Debug("analysis cache hit", zap.String("key", key))
		return res, nil
	}

	res, err := c.next.Analyze(ctx, req)
	if err != nil {
		return uci.Result{}, err
	}
	if err := c.cache.Set(ctx, key, res); err != nil {
		c.log.Warn("analysis cache write failed", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}
