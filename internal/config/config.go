package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Recognition RecognitionConfig `yaml:"recognition"`
	FaceService FaceServiceConfig `yaml:"face_service"`
	Database    DatabaseConfig    `yaml:"database"`
	Access      AccessConfig      `yaml:"access"`
	Web         WebConfig         `yaml:"web"`
	Logging     LoggingConfig     `yaml:"logging"`
	Legacy      LegacyConfig      `yaml:"legacy"`
}

type RecognitionConfig struct {
	Tolerance     float64 `yaml:"tolerance"`      // maximum Euclidean distance accepted as a match
	DescriptorDim int     `yaml:"descriptor_dim"` // length of every stored descriptor
}

type FaceServiceConfig struct {
	URL             string        `yaml:"url"`   // embedding service base URL
	Model           string        `yaml:"model"` // model name recorded with each descriptor
	Timeout         time.Duration `yaml:"timeout"`
	MaxImageSide    int           `yaml:"max_image_side"` // captures are downsized to fit this before upload
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	HNSWIndexPath   string        `yaml:"hnsw_index_path"`   // optional, if empty the index is rebuilt on startup
	GalleryCacheTTL time.Duration `yaml:"gallery_cache_ttl"` // how long the descriptor gallery is cached between enrollments
}

type AccessConfig struct {
	DefaultLocation string `yaml:"default_location"`
	TypeAccess      string `yaml:"type_access"`
	SyncRecording   bool   `yaml:"sync_recording"` // write registers inline instead of through the recorder queue
	StoreCaptures   bool   `yaml:"store_captures"` // keep the normalized capture with each register
	RecorderWorkers int    `yaml:"recorder_workers"`
	RecorderQueue   int    `yaml:"recorder_queue"`
	NotifyManagerID int64  `yaml:"notify_manager_id"` // 0 notifies every manager
	DeviceToken     string `yaml:"device_token"`      // optional shared secret for access terminals
}

type WebConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SessionSecret  string        `yaml:"session_secret"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // optional rotating log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LegacyConfig points at the old FacePass MySQL/MariaDB database used by import-legacy.
type LegacyConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// Addr returns the listen address for the web server.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for identifiers, which may legitimately be zero.
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to the default when invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("30s", "5m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration embedded in the binary, without
// environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the embedded defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Recognition: RecognitionConfig{
			Tolerance:     envFloat("RECOGNITION_TOLERANCE", d.Recognition.Tolerance),
			DescriptorDim: envInt("DESCRIPTOR_DIM", d.Recognition.DescriptorDim),
		},
		FaceService: FaceServiceConfig{
			URL:             envString("FACE_SERVICE_URL", d.FaceService.URL),
			Model:           envString("FACE_SERVICE_MODEL", d.FaceService.Model),
			Timeout:         envDuration("FACE_SERVICE_TIMEOUT", d.FaceService.Timeout),
			MaxImageSide:    envInt("FACE_MAX_IMAGE_SIDE", d.FaceService.MaxImageSide),
			BreakerFailures: envInt("FACE_SERVICE_BREAKER_FAILURES", d.FaceService.BreakerFailures),
			BreakerCooldown: envDuration("FACE_SERVICE_BREAKER_COOLDOWN", d.FaceService.BreakerCooldown),
		},
		Database: DatabaseConfig{
			URL:             envString("DATABASE_URL", d.Database.URL),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			HNSWIndexPath:   envString("HNSW_INDEX_PATH", d.Database.HNSWIndexPath),
			GalleryCacheTTL: envDuration("GALLERY_CACHE_TTL", d.Database.GalleryCacheTTL),
		},
		Access: AccessConfig{
			DefaultLocation: envString("ACCESS_DEFAULT_LOCATION", d.Access.DefaultLocation),
			TypeAccess:      envString("ACCESS_TYPE", d.Access.TypeAccess),
			SyncRecording:   envBool("ACCESS_SYNC_RECORDING", d.Access.SyncRecording),
			StoreCaptures:   envBool("ACCESS_STORE_CAPTURES", d.Access.StoreCaptures),
			RecorderWorkers: envInt("ACCESS_RECORDER_WORKERS", d.Access.RecorderWorkers),
			RecorderQueue:   envInt("ACCESS_RECORDER_QUEUE", d.Access.RecorderQueue),
			NotifyManagerID: envInt64("ACCESS_NOTIFY_MANAGER_ID", d.Access.NotifyManagerID),
			DeviceToken:     envString("ACCESS_DEVICE_TOKEN", d.Access.DeviceToken),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			SessionSecret:  envString("WEB_SESSION_SECRET", d.Web.SessionSecret),
			SessionTTL:     envDuration("WEB_SESSION_TTL", d.Web.SessionTTL),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
		Logging: LoggingConfig{
			Level:      envString("LOG_LEVEL", d.Logging.Level),
			File:       envString("LOG_FILE", d.Logging.File),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", d.Logging.MaxSizeMB),
			MaxBackups: envInt("LOG_MAX_BACKUPS", d.Logging.MaxBackups),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", d.Logging.MaxAgeDays),
		},
		Legacy: LegacyConfig{
			DatabaseURL: envString("LEGACY_DATABASE_URL", d.Legacy.DatabaseURL),
		},
	}
}
