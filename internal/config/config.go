package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/chess-position-analyzer/internal/obslog"
)

type AppConfig struct {
	Port       int
	CORSOrigin string

	StockfishPath   string
	EngineThreads   int
	EngineHashMB    int
	EngineReuse     bool
	EnginePoolSize  int
	EngineQuitGrace time.Duration
	EngineHandshake time.Duration
	AnalysisDefault time.Duration
	AnalysisMin     time.Duration
	AnalysisMax     time.Duration

	RedisURL string
	CacheTTL time.Duration

	MessagesDir string
	// OpeningBookPath is an optional Polyglot book. Openings are named
	// from the built-in ECO table either way.
	OpeningBookPath string

	Log obslog.LogConfig
}

// fileConfig mirrors the optional YAML file named by ANALYZER_CONFIG.
// Durations are milliseconds unless noted.
type fileConfig struct {
	Port       *int    `yaml:"port"`
	CORSOrigin *string `yaml:"cors_origin"`
	Engine     struct {
		Path        *string `yaml:"path"`
		Threads     *int    `yaml:"threads"`
		HashMB      *int    `yaml:"hash_mb"`
		Reuse       *bool   `yaml:"reuse"`
		PoolSize    *int    `yaml:"pool_size"`
		QuitGraceMS *int    `yaml:"quit_grace_ms"`
		HandshakeMS *int    `yaml:"handshake_ms"`
	} `yaml:"engine"`
	Analysis struct {
		DefaultMS *int `yaml:"default_ms"`
		MinMS     *int `yaml:"min_ms"`
		MaxMS     *int `yaml:"max_ms"`
	} `yaml:"analysis"`
	Cache struct {
		RedisURL *string `yaml:"redis_url"`
		TTLSec   *int    `yaml:"ttl_sec"`
	} `yaml:"cache"`
	MessagesDir *string `yaml:"messages_dir"`
	OpeningBook *string `yaml:"opening_book"`
	Log         struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
		File   *string `yaml:"file"`
	} `yaml:"log"`
}

func defaults() *AppConfig {
	return &AppConfig{
		Port:            5000,
		CORSOrigin:      "*",
		StockfishPath:   "./stockfish",
		EngineQuitGrace: 500 * time.Millisecond,
		EngineHandshake: 4 * time.Second,
		AnalysisDefault: 1500 * time.Millisecond,
		AnalysisMin:     100 * time.Millisecond,
		AnalysisMax:     30 * time.Second,
		CacheTTL:        10 * time.Minute,
		Log: obslog.LogConfig{
			Level:     "info",
			Format:    "legacy",
			ToConsole: true,
		},
	}
}

// Load reads .env (if present), then the YAML file named by ANALYZER_CONFIG,
// then environment variables. Later sources win.
func Load() (*AppConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("ANALYZER_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *AppConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setInt(&c.Port, fc.Port)
	setString(&c.CORSOrigin, fc.CORSOrigin)
	setString(&c.StockfishPath, fc.Engine.Path)
	setInt(&c.EngineThreads, fc.Engine.Threads)
	setInt(&c.EngineHashMB, fc.Engine.HashMB)
	if fc.Engine.Reuse != nil {
		c.EngineReuse = *fc.Engine.Reuse
	}
	setInt(&c.EnginePoolSize, fc.Engine.PoolSize)
	setMillis(&c.EngineQuitGrace, fc.Engine.QuitGraceMS)
	setMillis(&c.EngineHandshake, fc.Engine.HandshakeMS)
	setMillis(&c.AnalysisDefault, fc.Analysis.DefaultMS)
	setMillis(&c.AnalysisMin, fc.Analysis.MinMS)
	setMillis(&c.AnalysisMax, fc.Analysis.MaxMS)
	setString(&c.RedisURL, fc.Cache.RedisURL)
	if fc.Cache.TTLSec != nil {
		c.CacheTTL = time.Duration(*fc.Cache.TTLSec) * time.Second
	}
	setString(&c.MessagesDir, fc.MessagesDir)
	setString(&c.OpeningBookPath, fc.OpeningBook)
	setString(&c.Log.Level, fc.Log.Level)
	setString(&c.Log.Format, fc.Log.Format)
	if fc.Log.File != nil && strings.TrimSpace(*fc.Log.File) != "" {
		c.Log.File = strings.TrimSpace(*fc.Log.File)
		c.Log.ToFile = true
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	var errs []error
	envInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	envMillis := func(key string, dst *time.Duration) {
		ms := 0
		envInt(key, &ms)
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	envBool := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	envString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	envInt("PORT", &c.Port)
	envString("CORS_ORIGIN", &c.CORSOrigin)

	envString("STOCKFISH_PATH", &c.StockfishPath)
	envInt("ENGINE_THREADS", &c.EngineThreads)
	envInt("ENGINE_HASH_MB", &c.EngineHashMB)
	envBool("ENGINE_REUSE", &c.EngineReuse)
	envInt("ENGINE_POOL_SIZE", &c.EnginePoolSize)
	envMillis("ENGINE_QUIT_GRACE_MS", &c.EngineQuitGrace)
	envMillis("ENGINE_HANDSHAKE_MS", &c.EngineHandshake)

	envMillis("ANALYSIS_DEFAULT_MS", &c.AnalysisDefault)
	envMillis("ANALYSIS_MIN_MS", &c.AnalysisMin)
	envMillis("ANALYSIS_MAX_MS", &c.AnalysisMax)

	envString("REDIS_URL", &c.RedisURL)
	var ttlSec int
	envInt("CACHE_TTL_SEC", &ttlSec)
	if ttlSec > 0 {
		c.CacheTTL = time.Duration(ttlSec) * time.Second
	}
	envString("MESSAGES_DIR", &c.MessagesDir)
	envString("OPENING_BOOK_PATH", &c.OpeningBookPath)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
	envBool("LOG_TO_CONSOLE", &c.Log.ToConsole)
	envBool("LOG_TO_FILE", &c.Log.ToFile)
	envString("LOG_FILE", &c.Log.File)
	envBool("LOG_CALLER", &c.Log.Caller)

	return errors.Join(errs...)
}

func (c *AppConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if strings.TrimSpace(c.StockfishPath) == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	if c.EngineThreads < 0 || c.EngineHashMB < 0 || c.EnginePoolSize < 0 {
		return errors.New("engine threads, hash and pool size must not be negative")
	}
	if c.AnalysisMin > c.AnalysisMax {
		return fmt.Errorf("ANALYSIS_MIN_MS (%s) exceeds ANALYSIS_MAX_MS (%s)", c.AnalysisMin, c.AnalysisMax)
	}
	if c.AnalysisDefault < c.AnalysisMin || c.AnalysisDefault > c.AnalysisMax {
		return fmt.Errorf("ANALYSIS_DEFAULT_MS (%s) outside [%s, %s]", c.AnalysisDefault, c.AnalysisMin, c.AnalysisMax)
	}
	return nil
}

func (c *AppConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func setMillis(dst *time.Duration, v *int) {
	if v != nil && *v > 0 {
		*dst = time.Duration(*v) * time.Millisecond
	}
}
