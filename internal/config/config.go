package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// 鉴权模式
const (
	AuthModeAPIKey = "apikey"
	AuthModeJWT    = "jwt"
	AuthModeNone   = "none"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	LogLevel           string
	LogFormat          string
	// 元数据存储
	DBDriver       string // "postgres" 或 "memory"
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	DBMaxIdleConns int
	// 鉴权配置
	AuthMode        string   // "apikey"、"jwt" 或 "none"
	APIKeys         []string // apikey 模式下有效的 key，key 本身即用户 id
	JWTSecret       string   // HS256 本地校验
	JWKSURL         string   // RS256/ES256 公钥地址
	AuthUserInfoURL string   // 本地校验失败时的远程校验地址
	AuthAPIKey      string   // 访问身份服务时附带的 apikey 头
	NotifyToken     string   // 存储事件回调的共享口令，为空则不校验
	// 存储配置
	StorageDriver string // "minio" 或 "aws"
	S3Endpoint    string // minio: 不含协议；aws: 可选的完整 URL
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool // 是否使用 HTTPS
	S3PathStyle   bool // 是否使用路径风格访问（MinIO 需要设为 true）
	// 上传策略
	MaxUploadSize     int64
	UploadURLTTL      time.Duration
	ChunkURLTTL       time.Duration
	DownloadURLTTL    time.Duration
	StaleUploadMaxAge time.Duration
}

// Load 从环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	port := envOrDefault("PORT", "8080")

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxOpen, err := parseIntEnv("DB_MAX_OPEN_CONNS", 15)
	if err != nil {
		return nil, err
	}
	maxIdle, err := parseIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}

	dbDriver := strings.ToLower(envOrDefault("DB_DRIVER", "postgres"))
	if dbDriver != "postgres" && dbDriver != "memory" {
		return nil, fmt.Errorf("不支持的 DB_DRIVER: %s", dbDriver)
	}

	// 鉴权配置
	authMode := strings.ToLower(envOrDefault("AUTH_MODE", AuthModeAPIKey))
	switch authMode {
	case AuthModeAPIKey, AuthModeJWT, AuthModeNone:
	default:
		return nil, fmt.Errorf("不支持的 AUTH_MODE: %s", authMode)
	}
	apiKeys := parseList(os.Getenv("API_KEYS"))
	if len(apiKeys) == 0 {
		// 开发环境默认 key
		apiKeys = []string{"dev-api-key-123456"}
	}
	if authMode == AuthModeJWT && os.Getenv("JWT_SECRET") == "" && os.Getenv("JWKS_URL") == "" && os.Getenv("AUTH_USERINFO_URL") == "" {
		return nil, fmt.Errorf("AUTH_MODE=jwt 需要 JWT_SECRET、JWKS_URL 或 AUTH_USERINFO_URL 之一")
	}

	// 存储配置
	storageDriver := strings.ToLower(envOrDefault("STORAGE_DRIVER", "minio"))
	if storageDriver != "minio" && storageDriver != "aws" {
		return nil, fmt.Errorf("不支持的 STORAGE_DRIVER: %s", storageDriver)
	}

	maxUploadSize, err := parseSizeEnv("MAX_UPLOAD_SIZE", 5*units.TiB)
	if err != nil {
		return nil, err
	}

	uploadTTL, err := parseDurationEnv("UPLOAD_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	chunkTTL, err := parseDurationEnv("CHUNK_URL_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	downloadTTL, err := parseDurationEnv("DOWNLOAD_URL_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	staleAge, err := parseDurationEnv("STALE_UPLOAD_MAX_AGE", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:           port,
		CORSAllowedOrigins: corsOrigins,
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		DBDriver:           dbDriver,
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "filedrive"),
		DBPassword:         envOrDefault("DB_PASSWORD", "filedrive"),
		DBName:             envOrDefault("DB_NAME", "filedrive"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		DBMaxOpenConns:     maxOpen,
		DBMaxIdleConns:     maxIdle,
		AuthMode:           authMode,
		APIKeys:            apiKeys,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWKSURL:            os.Getenv("JWKS_URL"),
		AuthUserInfoURL:    os.Getenv("AUTH_USERINFO_URL"),
		AuthAPIKey:         os.Getenv("AUTH_API_KEY"),
		NotifyToken:        os.Getenv("NOTIFY_TOKEN"),
		StorageDriver:      storageDriver,
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "filedrive"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3PathStyle:        parseBoolEnv("S3_PATH_STYLE", true),
		MaxUploadSize:      maxUploadSize,
		UploadURLTTL:       uploadTTL,
		ChunkURLTTL:        chunkTTL,
		DownloadURLTTL:     downloadTTL,
		StaleUploadMaxAge:  staleAge,
	}, nil
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

// parseSizeEnv 接受 "5GB"、"512MiB" 这类可读大小。
func parseSizeEnv(key string, defaultValue int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	value, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
