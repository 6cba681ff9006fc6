package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-position-analyzer/internal/adapter/chesspresenter"
	"github.com/park285/chess-position-analyzer/internal/cache"
	corechess "github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/internal/chess/openingbook"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/internal/config"
	"github.com/park285/chess-position-analyzer/internal/msgcat"
	"github.com/park285/chess-position-analyzer/internal/server"
)

const redisConnectTimeout = 5 * time.Second

type Deps struct {
	Analyzer *corechess.Analyzer
	// Service is what request handlers call: the analyzer, wrapped by the
	// result cache when Redis is configured.
	Service   corechess.PositionAnalyzer
	Redis     *redis.Client
	Book      *openingbook.Book
	Formatter *chesspresenter.Formatter
}

// SessionConfig maps application settings onto engine session settings.
func SessionConfig(cfg *config.AppConfig, logger *zap.Logger) uci.Config {
	return uci.Config{
		BinaryPath: cfg.StockfishPath,
		Options: uci.Options{
			Threads: cfg.EngineThreads,
			HashMB:  cfg.EngineHashMB,
		},
		HandshakeTimeout: cfg.EngineHandshake,
		QuitGrace:        cfg.EngineQuitGrace,
		Logger:           logger.Named("engine"),
	}
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for chess engine")
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	book, err := openingbook.Open(cfg.OpeningBookPath)
	if err != nil {
		return nil, fmt.Errorf("load opening book: %w", err)
	}
	if book.HasPolyglot() {
		logger.Info("opening book loaded", zap.String("path", book.Path()))
	}

	analyzer, err := corechess.NewAnalyzer(corechess.AnalyzerConfig{
		Session:       SessionConfig(cfg, logger),
		Reuse:         cfg.EngineReuse,
		PoolCapacity:  cfg.EnginePoolSize,
		DefaultBudget: cfg.AnalysisDefault,
		MinBudget:     cfg.AnalysisMin,
		MaxBudget:     cfg.AnalysisMax,
		Logger:        logger.Named("analyzer"),
	})
	if err != nil {
		return nil, fmt.Errorf("init analyzer: %w", err)
	}

	deps := &Deps{
		Analyzer:  analyzer,
		Service:   analyzer,
		Book:      book,
		Formatter: chesspresenter.NewFormatter(cat).WithBook(book),
	}

	// Cache (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
		rdb, err := cache.Open(cctx, cfg.RedisURL)
		cancel()
		if err != nil {
			_ = analyzer.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
		deps.Redis = rdb
		deps.Service = cache.NewCachedAnalyzer(analyzer, cache.NewRedisCache(rdb, cfg.CacheTTL), logger.Named("cache"))
	}

	return deps, nil
}

// Server builds the HTTP API on top of deps.
func (d *Deps) Server(cfg *config.AppConfig, logger *zap.Logger) *server.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return server.New(d.Service, server.Options{
		CORSOrigin:   cfg.CORSOrigin,
		Limits:       d.Analyzer.Limits(),
		RequestGrace: cfg.EngineQuitGrace + 2*time.Second,
		Stats:        d.Analyzer,
		CacheEnabled: d.Redis != nil,
		Formatter:    d.Formatter,
		Logger:       logger.Named("http"),
	})
}

func (d *Deps) Close() error {
	var errs []error
	if d.Analyzer != nil {
		errs = append(errs, d.Analyzer.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
