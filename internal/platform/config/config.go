package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devJWTSecret = "dev-insecure-secret"
)

type Config struct {
	Env      string
	APIPort  string
	LogLevel string

	JWTKey         []byte
	SignupTokenTTL time.Duration
	LoginTokenTTL  time.Duration
	AdminSecret    string

	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSslMode   string
	DBConnStr   string

	ReplicateAPIToken string
	ReplicateBaseURL  string
	ReplicateModel    string
	GenerationTimeout time.Duration

	BlobBackend string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GenerateRateLimit  string
	IPRateLimit        string
	CORSAllowedOrigins []string
}

// Load reads envFile (if it exists) into the process environment and builds the
// configuration from it. A missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", EnvDevelopment),
		APIPort:  getEnv("API_PORT", getEnv("PORT", "3000")),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTKey:         []byte(getEnv("JWT_SECRET", "")),
		SignupTokenTTL: getEnvAsDuration("SIGNUP_TOKEN_TTL", 7*24*time.Hour),
		LoginTokenTTL:  getEnvAsDuration("LOGIN_TOKEN_TTL", time.Hour),
		AdminSecret:    getEnv("ADMIN_SECRET", ""),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "image_gen"),
		DBSslMode:   getEnv("DB_SSLMODE", "disable"),

		ReplicateAPIToken: getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModel:    getEnv("REPLICATE_MODEL", "black-forest-labs/flux-schnell"),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 120*time.Second),

		BlobBackend: getEnv("BLOB_BACKEND", "postgres"),
		S3Bucket:    getEnv("S3_BUCKET", "images"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		GenerateRateLimit:  getEnv("GENERATE_RATE_LIMIT", "20-M"),
		IPRateLimit:        getEnv("IP_RATE_LIMIT", "300-M"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	cfg.DBConnStr = getEnv("DATABASE_URL", "")
	if cfg.DBConnStr == "" {
		cfg.DBConnStr = "host=" + cfg.DBHost +
			" port=" + cfg.DBPort +
			" user=" + cfg.DBUser +
			" password=" + cfg.DBPassword +
			" dbname=" + cfg.DBName +
			" sslmode=" + cfg.DBSslMode
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) validate() error {
	if len(c.JWTKey) == 0 {
		if c.IsProduction() {
			return errors.New("JWT_SECRET must be set in production")
		}
		c.JWTKey = []byte(devJWTSecret)
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.BlobBackend {
	case "postgres", "s3", "memory":
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.BlobBackend == "postgres" && c.StoreDriver == "memory" {
		return errors.New("BLOB_BACKEND=postgres requires STORE_DRIVER=postgres")
	}
	if c.GenerationTimeout <= 0 {
		return errors.New("GENERATION_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
