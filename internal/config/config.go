// Package config loads and validates runtime configuration at startup.
// Fail-fast: if a required variable is missing, the process exits.
//
// Connection strings come from the environment (optionally via a local
// .env file); engine tunables may additionally be set in an optional
// engine.yaml. Environment variables always win over YAML values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine holds the tunables of the discovery loop. All fields have
// defaults; engine.yaml overrides them selectively.
type Engine struct {
	TickSeconds        int      `yaml:"tick_seconds"`
	WorkerPoolSize     int      `yaml:"worker_pool_size"`
	RequestsPerMinute  int      `yaml:"requests_per_minute"`
	MaxKeywordsPerRun  int      `yaml:"max_keywords_per_run"`
	MaxLocationsPerRun int      `yaml:"max_locations_per_run"`
	MaxResultsPerQuery int      `yaml:"max_results_per_query"`
	FetchTimeoutSecs   int      `yaml:"fetch_timeout_seconds"`
	BrowserTimeoutSecs int      `yaml:"browser_timeout_seconds"`
	BrowserFallback    bool     `yaml:"browser_fallback"`
	EmployerAllowList  []string `yaml:"employer_allow_list"`
}

// Config holds all runtime configuration for the discovery engine.
type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	TelegramToken    string // optional; empty disables the Telegram transport
	TelegramChatBase int64  // optional default chat for diagnostics digests
	Engine           Engine
}

// Tick returns the coordinator poll interval.
func (e Engine) Tick() time.Duration {
	return time.Duration(e.TickSeconds) * time.Second
}

// FetchTimeout is the per-request timeout of the structured-fetch method.
func (e Engine) FetchTimeout() time.Duration {
	return time.Duration(e.FetchTimeoutSecs) * time.Second
}

// BrowserTimeout is the navigation timeout of the browser-automation method.
func (e Engine) BrowserTimeout() time.Duration {
	return time.Duration(e.BrowserTimeoutSecs) * time.Second
}

func defaultEngine() Engine {
	return Engine{
		TickSeconds:        30,
		WorkerPoolSize:     4,
		RequestsPerMinute:  10,
		MaxKeywordsPerRun:  3,
		MaxLocationsPerRun: 2,
		MaxResultsPerQuery: 10,
		FetchTimeoutSecs:   15,
		BrowserTimeoutSecs: 45,
		BrowserFallback:    true,
		EmployerAllowList: []string{
			"google", "microsoft", "amazon", "apple",
			"meta", "netflix", "uber", "airbnb",
		},
	}
}

// Load reads .env, the environment, and the optional engineFile, and
// returns a validated Config. Pass "" to use the ENGINE_CONFIG variable
// (default "engine.yaml"); a missing file is not an error.
func Load(engineFile string) (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("DISCOVERY_PORT")
	if port == "" {
		port = "8081"
	}

	if engineFile == "" {
		engineFile = os.Getenv("ENGINE_CONFIG")
		if engineFile == "" {
			engineFile = "engine.yaml"
		}
	}

	engine, err := loadEngine(engineFile)
	if err != nil {
		return nil, err
	}

	var chatID int64
	if s := os.Getenv("TELEGRAM_CHAT_ID"); s != "" {
		chatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer, got %q", s)
		}
	}

	return &Config{
		Port:             port,
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatBase: chatID,
		Engine:           engine,
	}, nil
}

// loadEngine merges engine.yaml over the defaults, then applies the few
// environment overrides that operators commonly flip at deploy time.
func loadEngine(path string) (Engine, error) {
	e := defaultEngine()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return e, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &e); err != nil {
			return e, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if s := os.Getenv("REQUESTS_PER_MINUTE"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return e, fmt.Errorf("REQUESTS_PER_MINUTE must be a positive integer, got %q", s)
		}
		e.RequestsPerMinute = v
	}
	if s := os.Getenv("WORKER_POOL_SIZE"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return e, fmt.Errorf("WORKER_POOL_SIZE must be a positive integer, got %q", s)
		}
		e.WorkerPoolSize = v
	}

	if e.TickSeconds < 1 {
		e.TickSeconds = 30
	}
	if e.WorkerPoolSize < 1 {
		e.WorkerPoolSize = 1
	}
	if e.MaxKeywordsPerRun < 1 {
		e.MaxKeywordsPerRun = 1
	}
	if e.MaxLocationsPerRun < 1 {
		e.MaxLocationsPerRun = 1
	}

	return e, nil
}
