package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// PortalURL is the base URL of the CKAN portal, e.g.
	// "https://dados.example.gov.br".
	PortalURL string
	// APIKey is optional; empty means anonymous requests.
	APIKey string

	DBPath     string
	CacheDir   string
	CacheTTL   time.Duration
	StatusFile string

	Workers         int
	MaxRetries      int
	DownloadTimeout time.Duration
	MaxRedirects    int
	MaxFileSize     int64
	DiskSpaceMargin int64
	UserAgent       string

	Verbose bool
}

func DefaultConfig() *Config {
	return &Config{
		DBPath:          "findings.db",
		CacheDir:        filepath.Join(os.TempDir(), "cpf-portal-cache"),
		CacheTTL:        time.Hour,
		Workers:         1, // sequential by default; bounded pool when raised
		MaxRetries:      3,
		DownloadTimeout: 30 * time.Second,
		MaxRedirects:    5,
		MaxFileSize:     110 * 1024 * 1024,
		DiskSpaceMargin: 200 * 1024 * 1024,
		UserAgent:       "cpf-portal-scan/1.0 (+https://github.com/digimosa/cpf-portal-scan)",
	}
}

// Load builds the config from defaults overridden by environment
// variables. A .env file in the working directory is honored when
// present.
func Load() *Config {
	_ = godotenv.Load() // missing .env is fine

	cfg := DefaultConfig()
	cfg.PortalURL = getenv("PORTAL_URL", cfg.PortalURL)
	cfg.APIKey = getenv("PORTAL_API_KEY", cfg.APIKey)
	cfg.DBPath = getenv("DB_PATH", cfg.DBPath)
	cfg.CacheDir = getenv("CACHE_DIR", cfg.CacheDir)
	cfg.StatusFile = getenv("STATUS_FILE", cfg.StatusFile)
	cfg.Workers = getenvInt("SCAN_WORKERS", cfg.Workers)
	cfg.MaxRetries = getenvInt("MAX_RETRIES", cfg.MaxRetries)
	if secs := getenvInt("CACHE_TTL_SECONDS", 0); secs > 0 {
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}
	if secs := getenvInt("DOWNLOAD_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.DownloadTimeout = time.Duration(secs) * time.Second
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}
