package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	GCS      GCSConfig      `json:"gcs"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Uploads  UploadsConfig  `json:"uploads"`
}

type ServerConfig struct {
	Port         string   `json:"port"`
	Environment  string   `json:"environment"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

type GCSConfig struct {
	BucketName      string `json:"bucket_name"`
	ProjectID       string `json:"project_id"`
	CredentialsPath string `json:"credentials_path"`
}

// RedisConfig is optional. An empty Address disables the template cache and
// the update lock.
type RedisConfig struct {
	Address  string        `json:"address"`
	Password string        `json:"password"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type UploadsConfig struct {
	Dir    string        `json:"dir"`
	MaxAge time.Duration `json:"max_age"`
}

func (d *DatabaseConfig) DSN() string {
	// Cloud SQL Unix socket support
	if len(d.Host) > 0 && d.Host[0] == '/' {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

func (s *ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		GetLogger().WithError(err).Info("No .env file loaded, using system environment variables")
	}

	cacheTTL, err := getDuration("TEMPLATE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	maxAge, err := getDuration("UPLOAD_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: parseAllowOrigins(),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fs_forms"),
		},
		GCS: GCSConfig{
			BucketName:      getEnv("GCS_BUCKET_NAME", ""),
			ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
			CredentialsPath: getEnv("GCS_CREDENTIALS_PATH", ""),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			CacheTTL: cacheTTL,
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Uploads: UploadsConfig{
			Dir:    getEnv("UPLOAD_DIR", "uploads"),
			MaxAge: maxAge,
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseAllowOrigins() []string {
	if origins := os.Getenv("ALLOW_ORIGINS"); origins != "" {
		var allowOrigins []string
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowOrigins = append(allowOrigins, trimmed)
			}
		}
		return allowOrigins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:3001",
	}
}
