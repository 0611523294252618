package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	CORSOrigins      []string
	DefaultLocale    string
	GeoIPDBPath      string
	UploadFolder     string
	OutputFolder     string
	ConsolidatorCmd  []string
	ConsolidatorDir  string
	ArtifactWindow   time.Duration
	MaxUploadBytes   int64
	SFTP             SFTPConfig
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// SFTPConfig is handed to the consolidator process and used by the remote
// folder browser.
type SFTPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	RemoteFolder string
	// HostKey is the server key in authorized_keys format. Empty accepts any key.
	HostKey string
	Timeout time.Duration
	Retries int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		DefaultLocale:   getEnv("DEFAULT_LOCALE", "es"),
		GeoIPDBPath:     os.Getenv("GEOIP_DB_PATH"),
		UploadFolder:    getEnv("UPLOAD_FOLDER", "uploads"),
		OutputFolder:    getEnv("OUTPUT_FOLDER", "outputs"),
		ConsolidatorCmd: strings.Fields(getEnv("CONSOLIDADOR_CMD", "python3 -u app/core/consolidador_t25_parametrizado.py")),
		ConsolidatorDir: os.Getenv("CONSOLIDADOR_WORKDIR"),
		ArtifactWindow:  time.Second * time.Duration(getEnvInt("ARTIFACT_WINDOW_SECONDS", 600)),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		SFTP: SFTPConfig{
			Host:         getEnv("SFTP_HOST", "mft.positiva.gov.co"),
			Port:         getEnvInt("SFTP_PORT", 2243),
			Username:     os.Getenv("SFTP_USERNAME"),
			Password:     os.Getenv("SFTP_PASSWORD"),
			RemoteFolder: getEnv("CARPETA_PRINCIPAL", "R.A-ABASTECIMIENTO RED ASISTENCIAL"),
			HostKey:      os.Getenv("SFTP_HOST_KEY"),
			Timeout:      time.Second * time.Duration(getEnvInt("SFTP_TIMEOUT_SECONDS", 30)),
			Retries:      getEnvInt("SFTP_MAX_RETRIES", 3),
		},
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if len(cfg.ConsolidatorCmd) == 0 {
		return nil, fmt.Errorf("CONSOLIDADOR_CMD is required")
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	return cfg, nil
}

// AllowsAnyOrigin reports whether CORS is open to every origin.
func (c *Config) AllowsAnyOrigin() bool {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
