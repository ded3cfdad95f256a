package config

const (
	EnvPrefix = "STICKERLAB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultDataDirName = ".stickerlab"
	DefaultConfigFile  = "config.toml"

	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

const (
	EnvAppEnv                 = "STICKERLAB_APP_ENV"
	EnvAppHost                = "STICKERLAB_APP_HOST"
	EnvPort                   = "STICKERLAB_APP_PORT"
	EnvLogLevel               = "STICKERLAB_LOG_LEVEL"
	EnvStoreDriver            = "STICKERLAB_STORE_DRIVER"
	EnvDBDSN                  = "STICKERLAB_DB_DSN"
	EnvRedisURL               = "STICKERLAB_REDIS_URL"
	EnvRedisAddr              = "STICKERLAB_REDIS_ADDR"
	EnvRemoveBGAPIKey         = "STICKERLAB_REMOVEBG_API_KEY"
	EnvRemoveBGBaseURL        = "STICKERLAB_REMOVEBG_BASE_URL"
	EnvRemoveBGMaxAttempts    = "STICKERLAB_REMOVEBG_MAX_ATTEMPTS"
	EnvDataDir                = "STICKERLAB_DATA_DIR"
	EnvMediaCacheDir          = "STICKERLAB_MEDIA_CACHE_DIR"
	EnvMediaExportDir         = "STICKERLAB_MEDIA_EXPORT_DIR"
	EnvMediaStickerSize       = "STICKERLAB_MEDIA_STICKER_SIZE"
	EnvMediaWatermarkOpacity  = "STICKERLAB_MEDIA_WATERMARK_OPACITY"
	EnvCreditsInitialGrant    = "STICKERLAB_CREDITS_INITIAL_GRANT"
	EnvStickersRecoverCorrupt = "STICKERLAB_STICKERS_RECOVER_CORRUPT"
	EnvConfigFile             = "STICKERLAB_CONFIG_FILE"
)
