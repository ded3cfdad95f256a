package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	RemoveBG  RemoveBGConfig
	Media     MediaConfig
	Credits   CreditsConfig
	Stickers  StickersConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Media.resolveDirs(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.DB.ensureDSN(cfg.Store.Driver, cfg.Media.DataDir)
	return &cfg, nil
}

type AppConfig struct {
	Env                string   `envconfig:"STICKERLAB_APP_ENV" default:"dev"`
	Host               string   `envconfig:"STICKERLAB_APP_HOST" default:"127.0.0.1"`
	Port               string   `envconfig:"STICKERLAB_APP_PORT" default:"8787"`
	LogLevel           string   `envconfig:"STICKERLAB_LOG_LEVEL" default:"info"`
	LogWarnStack       bool     `envconfig:"STICKERLAB_LOG_WARN_STACK" default:"false"`
	CORSAllowedOrigins []string `envconfig:"STICKERLAB_CORS_ALLOWED_ORIGINS" default:"http://localhost:*,http://127.0.0.1:*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Addr is the loopback listen address of the API daemon.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

type StoreConfig struct {
	Driver string `envconfig:"STICKERLAB_STORE_DRIVER" default:"sqlite"`
}

type DBConfig struct {
	DSN             string        `envconfig:"STICKERLAB_DB_DSN"`
	AutoMigrate     bool          `envconfig:"STICKERLAB_DB_AUTO_MIGRATE" default:"true"`
	MaxOpenConns    int           `envconfig:"STICKERLAB_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"STICKERLAB_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"STICKERLAB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STICKERLAB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Driver mirrors Store.Driver for the SQL backends and is set by Load.
	Driver string `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STICKERLAB_REDIS_URL"`
	Address      string        `envconfig:"STICKERLAB_REDIS_ADDR"`
	Password     string        `envconfig:"STICKERLAB_REDIS_PASSWORD"`
	DB           int           `envconfig:"STICKERLAB_REDIS_DB" default:"0"`
	Namespace    string        `envconfig:"STICKERLAB_REDIS_NAMESPACE" default:"stickerlab"`
	PoolSize     int           `envconfig:"STICKERLAB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STICKERLAB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STICKERLAB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STICKERLAB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STICKERLAB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type RemoveBGConfig struct {
	APIKey         string        `envconfig:"STICKERLAB_REMOVEBG_API_KEY"`
	BaseURL        string        `envconfig:"STICKERLAB_REMOVEBG_BASE_URL" default:"https://api.remove.bg/v1.0"`
	Size           string        `envconfig:"STICKERLAB_REMOVEBG_SIZE" default:"preview"`
	Timeout        time.Duration `envconfig:"STICKERLAB_REMOVEBG_TIMEOUT" default:"30s"`
	MaxAttempts    int           `envconfig:"STICKERLAB_REMOVEBG_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"STICKERLAB_REMOVEBG_INITIAL_BACKOFF" default:"500ms"`
	MaxBackoff     time.Duration `envconfig:"STICKERLAB_REMOVEBG_MAX_BACKOFF" default:"5s"`
	RatePerSecond  float64       `envconfig:"STICKERLAB_REMOVEBG_RATE_PER_SECOND" default:"1"`
	RateBurst      int           `envconfig:"STICKERLAB_REMOVEBG_RATE_BURST" default:"2"`
}

type MediaConfig struct {
	DataDir             string  `envconfig:"STICKERLAB_DATA_DIR"`
	CacheDir            string  `envconfig:"STICKERLAB_MEDIA_CACHE_DIR"`
	ExportDir           string  `envconfig:"STICKERLAB_MEDIA_EXPORT_DIR"`
	MaxSourceMB         int     `envconfig:"STICKERLAB_MEDIA_MAX_SOURCE_MB" default:"12"`
	StickerSize         int     `envconfig:"STICKERLAB_MEDIA_STICKER_SIZE" default:"512"`
	WatermarkText       string  `envconfig:"STICKERLAB_MEDIA_WATERMARK_TEXT" default:"Sticker Lab"`
	WatermarkOpacity    float64 `envconfig:"STICKERLAB_MEDIA_WATERMARK_OPACITY" default:"0.6"`
	WatermarkWidthRatio float64 `envconfig:"STICKERLAB_MEDIA_WATERMARK_WIDTH_RATIO" default:"0.35"`
}

// MaxSourceBytes is the upper bound on a source photo read from disk.
func (m MediaConfig) MaxSourceBytes() int64 {
	if m.MaxSourceMB <= 0 {
		return 0
	}
	return int64(m.MaxSourceMB) << 20
}

type CreditsConfig struct {
	InitialGrant int `envconfig:"STICKERLAB_CREDITS_INITIAL_GRANT" default:"3"`
}

type StickersConfig struct {
	RecoverCorrupt bool `envconfig:"STICKERLAB_STICKERS_RECOVER_CORRUPT" default:"true"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"STICKERLAB_METRICS_ENABLED" default:"true"`
}

// RateLimitConfig throttles the HTTP endpoints that start work: login and
// sticker creation. A zero limit disables that policy.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"STICKERLAB_RATE_LIMIT_WINDOW" default:"1m"`
	SessionLimit int           `envconfig:"STICKERLAB_RATE_LIMIT_SESSION" default:"10"`
	CreateLimit  int           `envconfig:"STICKERLAB_RATE_LIMIT_CREATE" default:"20"`
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverSQLite, StoreDriverPostgres:
	case StoreDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("%s or %s is required when %s=%s", EnvRedisURL, EnvRedisAddr, EnvStoreDriver, StoreDriverRedis)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStoreDriver, c.Store.Driver)
	}
	if c.Store.Driver == StoreDriverPostgres && c.DB.DSN == "" {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvStoreDriver, StoreDriverPostgres)
	}
	if c.Credits.InitialGrant < 0 {
		return fmt.Errorf("%s must be non-negative", EnvCreditsInitialGrant)
	}
	if c.Media.StickerSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvMediaStickerSize)
	}
	if c.Media.WatermarkOpacity <= 0 || c.Media.WatermarkOpacity > 1 {
		return fmt.Errorf("%s must be in (0, 1]", EnvMediaWatermarkOpacity)
	}
	if c.RemoveBG.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvRemoveBGMaxAttempts)
	}
	return nil
}

func (m *MediaConfig) resolveDirs() error {
	if m.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve %s: %w", EnvDataDir, err)
		}
		m.DataDir = filepath.Join(home, DefaultDataDirName)
	}
	if m.CacheDir == "" {
		m.CacheDir = filepath.Join(m.DataDir, "cache")
	}
	if m.ExportDir == "" {
		m.ExportDir = filepath.Join(m.DataDir, "exports")
	}
	return nil
}

func (db *DBConfig) ensureDSN(driver, dataDir string) {
	db.Driver = driver
	if db.DSN != "" || driver != StoreDriverSQLite {
		return
	}
	db.DSN = "file:" + filepath.Join(dataDir, "stickerlab.db") + "?_busy_timeout=5000"
}
