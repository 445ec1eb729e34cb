package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all application configuration.
type Config struct {
	Addr      string // HTTP listen address, e.g. ":8080"
	APIKey    string // API key for the admin API (env API_KEY). Empty = auth disabled.
	DBPath    string // SQLite database file
	LogLevel  string
	LogFormat string // "text" or "json"

	Permalink PermalinkConfig
	Cache     CacheConfig
	Routes    RoutesConfig
}

// PermalinkConfig controls article link generation.
type PermalinkConfig struct {
	Pattern  string // default article_url_pattern, used until one is saved in the DB
	Salt     string // obfuscated id key
	IDLength int    // obfuscated id length, clamped to [6,32] by the obfuscator
}

// CacheConfig sizes the in-process cache.
type CacheConfig struct {
	Capacity int
}

// RoutesConfig controls the route rewrite engine.
type RoutesConfig struct {
	Debounce time.Duration
}

// source resolves a setting from env vars, then the INI file, then a default.
type source struct {
	file *ini.File
}

func (s source) str(envKey, section, key, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if s.file != nil {
		if v := s.file.Section(section).Key(key).String(); v != "" {
			return v
		}
	}
	return fallback
}

func (s source) int(envKey, section, key string, fallback int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if s.file != nil && s.file.Section(section).HasKey(key) {
		if n, err := s.file.Section(section).Key(key).Int(); err == nil {
			return n
		}
	}
	return fallback
}

// Load parses flags and env vars. Flags take precedence over env vars,
// env vars over .env, and .env over the INI file named by CONFIG_FILE.
func Load() (*Config, error) {
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

// LoadFrom is Load with an explicit flag set and argument list.
func LoadFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	// .env is optional; it never overrides variables already in the environment.
	_ = godotenv.Load()

	var src source
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		src.file = f
	}

	addr := fs.String("addr", src.str("ADDR", "server", "addr", ":8080"), "HTTP listen address")
	dbPath := fs.String("db", src.str("DB_PATH", "database", "path", "blog.db"), "SQLite database path")
	logLevel := fs.String("log-level", src.str("LOG_LEVEL", "log", "level", "info"), "Log level")
	logFormat := fs.String("log-format", src.str("LOG_FORMAT", "log", "format", "text"), "Log format (text|json)")
	pattern := fs.String("article-url-pattern", src.str("ARTICLE_URL_PATTERN", "permalink", "pattern", "article/{id}"), "Default article permalink pattern")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Addr:      *addr,
		APIKey:    src.str("API_KEY", "server", "api_key", ""),
		DBPath:    *dbPath,
		LogLevel:  *logLevel,
		LogFormat: *logFormat,
		Permalink: PermalinkConfig{
			Pattern:  *pattern,
			Salt:     src.str("ID_SALT", "permalink", "salt", "change-me"),
			IDLength: src.int("ID_LENGTH", "permalink", "id_length", 6),
		},
		Cache: CacheConfig{
			Capacity: src.int("CACHE_CAPACITY", "cache", "capacity", 1024),
		},
		Routes: RoutesConfig{
			Debounce: time.Duration(src.int("REFRESH_DEBOUNCE_MS", "routes", "debounce_ms", 1000)) * time.Millisecond,
		},
	}

	if cfg.Cache.Capacity <= 0 {
		return nil, fmt.Errorf("config: cache capacity must be > 0, got %d", cfg.Cache.Capacity)
	}
	if cfg.Routes.Debounce < 0 {
		return nil, fmt.Errorf("config: debounce must be >= 0")
	}
	return cfg, nil
}
