package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Address string `json:"address" env:"APP_ADDRESS" envDefault:":3000"`
	Prefork bool   `json:"prefork" env:"APP_PREFORK"`
	Metrics *bool  `json:"metrics" env:"APP_METRICS"`

	// ImageRoot is where direct path requests are resolved. Empty means the events dir.
	ImageRoot    string   `json:"imageRoot" env:"APP_IMAGE_ROOT"`
	// AllowedPaths are patterns, relative to the image root, direct paths must match. Empty allows all.
	AllowedPaths []string `json:"allowedPaths" env:"APP_ALLOWED_PATHS" envSeparator:","`

	DirEvents string `json:"dirEvents" env:"APP_DIR_EVENTS" envDefault:"events"`
	PathWeb   string `json:"pathWeb" env:"APP_PATH_WEB" envDefault:"/usr/share/zoneminder/www"`

	EventImageDigits int `json:"eventImageDigits" env:"APP_EVENT_IMAGE_DIGITS" envDefault:"5"`

	DatabaseDSN string `json:"-" env:"APP_DB_DSN"`

	FfmpegPath       string        `json:"ffmpegPath" env:"APP_FFMPEG_PATH" envDefault:"ffmpeg"`
	Extractor        string        `json:"extractor" env:"APP_EXTRACTOR" envDefault:"ffmpeg"`
	SynthesisTimeout time.Duration `json:"synthesisTimeout" env:"APP_SYNTHESIS_TIMEOUT" envDefault:"30s"`
	MaxSyntheses     int64         `json:"maxSyntheses" env:"APP_MAX_SYNTHESES" envDefault:"4"`

	Resampler   string `json:"resampler" env:"APP_RESAMPLER" envDefault:"lanczos3"`
	JpegQuality int    `json:"jpegQuality" env:"APP_JPEG_QUALITY" envDefault:"85"`

	MemoryCache      bool  `json:"memoryCache" env:"APP_MEMORY_CACHE" envDefault:"true"`
	CacheNumCounters int64 `json:"cacheNumCounters" env:"APP_CACHE_NUM_COUNTERS"`
	CacheMaxCost     int64 `json:"cacheMaxCost" env:"APP_CACHE_MAX_COST"`
	CacheBufferItems int64 `json:"cacheBufferItems" env:"APP_CACHE_BUFFER_ITEMS"`

	PermissionHeader string `json:"permissionHeader" env:"APP_PERMISSION_HEADER" envDefault:"X-Monitor-Ids"`
	HTTPCacheTTL     int    `json:"httpCacheTTL" env:"APP_HTTP_CACHE_TTL" envDefault:"86400"`

	Limits Limits `json:"limits"`
}

// Limits bounds the accepted request parameters. Values outside are ignored, not rejected.
type Limits struct {
	ScaleMin     int `json:"scaleMin" env:"APP_SCALE_MIN" envDefault:"1"`
	ScaleMax     int `json:"scaleMax" env:"APP_SCALE_MAX" envDefault:"400"`
	DimensionMin int `json:"dimensionMin" env:"APP_DIMENSION_MIN" envDefault:"10"`
	DimensionMax int `json:"dimensionMax" env:"APP_DIMENSION_MAX" envDefault:"8000"`
}

func DefaultLimits() Limits {
	return Limits{ScaleMin: 1, ScaleMax: 400, DimensionMin: 10, DimensionMax: 8000}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment alone is enough
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if cfg.Metrics == nil {
		metrics := true
		cfg.Metrics = &metrics
	}

	if cfg.EventImageDigits < 1 {
		return nil, errors.New("APP_EVENT_IMAGE_DIGITS must be positive")
	}

	if cfg.JpegQuality < 1 || cfg.JpegQuality > 100 {
		cfg.JpegQuality = 85
	}

	if cfg.MaxSyntheses < 1 {
		cfg.MaxSyntheses = 1
	}

	return &cfg, nil
}

// EventsDir is the default storage area path. A relative events dir is taken
// relative to the web path.
func (c *Config) EventsDir() string {
	if filepath.IsAbs(c.DirEvents) {
		return c.DirEvents
	}
	return filepath.Join(c.PathWeb, c.DirEvents)
}

// Root returns the directory direct path requests are resolved against.
func (c *Config) Root() string {
	if c.ImageRoot != "" {
		return c.ImageRoot
	}
	return c.EventsDir()
}
