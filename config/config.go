package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tournament-ledger/utils"
)

type Config struct {
	App      *AppConfig
	DB       *DBConfig
	Redis    *RedisConfig
	Gateway  *GatewayConfig
	Sync     *SyncConfig
	R2       *R2Config
	Ledger   *LedgerConfig
	Dispatch *DispatchConfig
}

type AppConfig struct {
	Name           string
	Env            string
	Port           string
	GRPCPort       string
	BinFilePath    string
	AllowedOrigins string
	LogLevel       string
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	NotifyStream string
}

type GatewayConfig struct {
	BaseURL        string
	KeyID          string
	KeySecret      string
	SettleInterval time.Duration
}

type SyncConfig struct {
	ServiceURL   string
	ServiceToken string
	ProfilesPath string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

type LedgerConfig struct {
	Currency      string
	TopupOrderTTL time.Duration
}

type DispatchConfig struct {
	Workers   int
	QueueSize int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		utils.Warn("⚠️  No .env file found, reading environment variables directly")
	}

	return &Config{
		App:      LoadAppConfig(),
		DB:       LoadDBConfig(),
		Redis:    LoadRedisConfig(),
		Gateway:  LoadGatewayConfig(),
		Sync:     LoadSyncConfig(),
		R2:       LoadR2Config(),
		Ledger:   LoadLedgerConfig(),
		Dispatch: LoadDispatchConfig(),
	}
}

func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Name:           getEnv("APP_NAME", "tournament-ledger"),
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("APP_PORT", "5200"),
		GRPCPort:       getEnv("GRPC_PORT", "5201"),
		BinFilePath:    getEnv("APP_BIN_FILE", "./bin/tournament-ledger"),
		AllowedOrigins: normalizeOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func LoadDBConfig() *DBConfig {
	return &DBConfig{
		Driver:          strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DSN:             getEnv("DATABASE_URL", ""),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         getEnv("REDIS_ADDR", ""),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvAsInt("REDIS_DB", 0),
		NotifyStream: getEnv("NOTIFY_STREAM", "stream:notifications"),
	}
}

func LoadGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		BaseURL:        getEnv("GATEWAY_BASE_URL", ""),
		KeyID:          getEnv("GATEWAY_KEY_ID", ""),
		KeySecret:      getEnv("GATEWAY_KEY_SECRET", ""),
		SettleInterval: getEnvAsDuration("SETTLE_INTERVAL", time.Minute),
	}
}

func LoadSyncConfig() *SyncConfig {
	return &SyncConfig{
		ServiceURL:   getEnv("SYNC_SERVICE_URL", ""),
		ServiceToken: getEnv("GAME_SERVICE_TOKEN", ""),
		ProfilesPath: getEnv("SYNC_PROFILES_PATH", "/api/v1/public/profiles"),
	}
}

func LoadR2Config() *R2Config {
	return &R2Config{
		AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		Bucket:          getEnv("R2_BUCKET_NAME", ""),
	}
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Currency:      strings.ToUpper(getEnv("CURRENCY", "INR")),
		TopupOrderTTL: getEnvAsDuration("TOPUP_ORDER_TTL", 24*time.Hour),
	}
}

func LoadDispatchConfig() *DispatchConfig {
	return &DispatchConfig{
		Workers:   getEnvAsInt("DISPATCH_WORKERS", 4),
		QueueSize: getEnvAsInt("DISPATCH_QUEUE", 1024),
	}
}

// GetAppPort and friends are read before Load runs, from inside overseer's
// master process.
func GetAppPort() string    { return getEnv("APP_PORT", "5200") }
func GetGRPCPort() string   { return getEnv("GRPC_PORT", "5201") }
func GetAppEnv() string     { return getEnv("APP_ENV", "development") }
func GetAppBinFile() string { return getEnv("APP_BIN_FILE", "./bin/tournament-ledger") }

func (r *R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := getEnv(key, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

// getEnvAsDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(valStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
