// Package config provides configuration management for vidbrief using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultProbeTimeout      = 30 * time.Second
	defaultSizeCeiling       = "9.5MB"
	defaultMinTotalBitrate   = 11000
	defaultMinAudioBitrate   = 32000
	defaultMaxAudioBitrate   = 256000
	defaultMinVideoBitrate   = 100000
	defaultVideoFloor        = 1000
	defaultAudioShare        = 10
	defaultAudioBitrate      = 128000
	defaultOverheadFactor    = 1.073741824
	defaultMaxAttempts       = 5
	defaultAttemptTimeout    = 30 * time.Minute
	defaultMaxItemsPerRun    = 10
	defaultOrphanMaxAge      = time.Hour
	defaultMinFreeSpace      = "1GB"
	defaultSummarizerTimeout = 5 * time.Minute
	defaultScheduleCron      = "*/15 * * * *"
	defaultSyncInterval      = time.Minute
)

// DefaultMediaExtensions are the inbox file extensions treated as media.
var DefaultMediaExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".flv", ".m4a", ".mp3"}

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Transcode  TranscodeConfig  `mapstructure:"transcode"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	LogShip    LogShipConfig    `mapstructure:"logship"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKey guards the run trigger endpoint. Empty disables the endpoint.
	APIKey string `mapstructure:"api_key" masq:"secret"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" masq:"secret"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds local file storage configuration.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	ScratchDir string `mapstructure:"scratch_dir"`
	ObjectsDir string `mapstructure:"objects_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"` // empty = auto-detect
	ProbePath    string        `mapstructure:"probe_path"`  // empty = auto-detect
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// TranscodeConfig holds the size-constrained transcoder tuning.
// Bitrates are in bits per second.
type TranscodeConfig struct {
	SizeCeiling         ByteSize      `mapstructure:"size_ceiling"`
	TwoPass             bool          `mapstructure:"two_pass"`
	MinTotalBitrate     float64       `mapstructure:"min_total_bitrate"`
	MinAudioBitrate     float64       `mapstructure:"min_audio_bitrate"`
	MaxAudioBitrate     float64       `mapstructure:"max_audio_bitrate"`
	MinVideoBitrate     float64       `mapstructure:"min_video_bitrate"`
	VideoBitrateFloor   float64       `mapstructure:"video_bitrate_floor"`
	AudioShareDivisor   float64       `mapstructure:"audio_share_divisor"`
	DefaultAudioBitrate float64       `mapstructure:"default_audio_bitrate"`
	OverheadFactor      float64       `mapstructure:"overhead_factor"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	AttemptTimeout      time.Duration `mapstructure:"attempt_timeout"`
	VideoCodec          string        `mapstructure:"video_codec"`
	AudioCodec          string        `mapstructure:"audio_codec"`
}

// Failure policies applied when a transcode does not produce a file under the ceiling.
const (
	FailurePolicySkip           = "skip"
	FailurePolicyUploadOriginal = "upload_original"
)

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	OnTranscodeFailure string        `mapstructure:"on_transcode_failure"` // skip, upload_original
	MaxItemsPerRun     int           `mapstructure:"max_items_per_run"`
	MinFreeSpace       ByteSize      `mapstructure:"min_free_space"`
	OrphanMaxAge       time.Duration `mapstructure:"orphan_max_age"`
}

// InboxConfig selects where media is pulled from.
type InboxConfig struct {
	Backend            string        `mapstructure:"backend"` // local, gcs, dropbox
	Path               string        `mapstructure:"path"`    // local dir, gcs prefix, or dropbox folder
	Bucket             string        `mapstructure:"bucket"`
	Extensions         []string      `mapstructure:"extensions"`
	DeleteAfterProcess bool          `mapstructure:"delete_after_process"`
	Dropbox            DropboxConfig `mapstructure:"dropbox"`
}

// DropboxConfig holds Dropbox app credentials for refresh-token OAuth.
type DropboxConfig struct {
	AppKey       string `mapstructure:"app_key"`
	AppSecret    string `mapstructure:"app_secret" masq:"secret"`
	RefreshToken string `mapstructure:"refresh_token" masq:"secret"`
	APIURL       string `mapstructure:"api_url"`
	ContentURL   string `mapstructure:"content_url"`
}

// UploadConfig selects where processed media is uploaded.
type UploadConfig struct {
	Backend string      `mapstructure:"backend"` // local, gcs, s3
	Bucket  string      `mapstructure:"bucket"`
	Prefix  string      `mapstructure:"prefix"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	S3      S3Config    `mapstructure:"s3"`
	Local   LocalConfig `mapstructure:"local"`
}

// GCSConfig holds Google Cloud Storage client options.
type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

// S3Config holds S3 client options.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// LocalConfig holds options for the sandboxed local object store.
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// SummarizerConfig configures the video summarization model.
type SummarizerConfig struct {
	Provider        string        `mapstructure:"provider"` // gemini, vertex
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key" masq:"secret"`
	Project         string        `mapstructure:"project"`
	Location        string        `mapstructure:"location"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Prompt          string        `mapstructure:"prompt"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// NotifyConfig configures push notifications.
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	Token   string `mapstructure:"token" masq:"secret"`
	UserKey string `mapstructure:"user_key" masq:"secret"`
}

// LogShipConfig configures uploading each run's captured log.
type LogShipConfig struct {
	Enabled        bool         `mapstructure:"enabled"`
	Key            string       `mapstructure:"key"`
	BackupStrategy string       `mapstructure:"backup_strategy"` // file, folder
	Store          UploadConfig `mapstructure:"store"`
}

// ScheduleConfig configures the periodic inbox watch.
type ScheduleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Cron         string        `mapstructure:"cron"` // 5-field cron expression
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VIDBRIEF_ and use underscores for nesting.
// Example: VIDBRIEF_TRANSCODE_MAX_ATTEMPTS=3.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vidbrief")
		v.AddConfigPath("$HOME/.vidbrief")
	}

	v.SetEnvPrefix("VIDBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates configuration from an already prepared viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// decodeHook lets ByteSize fields accept "9.5MB" style strings alongside the viper defaults.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.api_key", "")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vidbrief.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.scratch_dir", "scratch")
	v.SetDefault("storage.objects_dir", "objects")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)

	// Transcode defaults
	v.SetDefault("transcode.size_ceiling", defaultSizeCeiling)
	v.SetDefault("transcode.two_pass", true)
	v.SetDefault("transcode.min_total_bitrate", defaultMinTotalBitrate)
	v.SetDefault("transcode.min_audio_bitrate", defaultMinAudioBitrate)
	v.SetDefault("transcode.max_audio_bitrate", defaultMaxAudioBitrate)
	v.SetDefault("transcode.min_video_bitrate", defaultMinVideoBitrate)
	v.SetDefault("transcode.video_bitrate_floor", defaultVideoFloor)
	v.SetDefault("transcode.audio_share_divisor", defaultAudioShare)
	v.SetDefault("transcode.default_audio_bitrate", defaultAudioBitrate)
	v.SetDefault("transcode.overhead_factor", defaultOverheadFactor)
	v.SetDefault("transcode.max_attempts", defaultMaxAttempts)
	v.SetDefault("transcode.attempt_timeout", defaultAttemptTimeout)
	v.SetDefault("transcode.video_codec", "libx264")
	v.SetDefault("transcode.audio_codec", "aac")

	// Pipeline defaults
	v.SetDefault("pipeline.on_transcode_failure", FailurePolicySkip)
	v.SetDefault("pipeline.max_items_per_run", defaultMaxItemsPerRun)
	v.SetDefault("pipeline.min_free_space", defaultMinFreeSpace)
	v.SetDefault("pipeline.orphan_max_age", defaultOrphanMaxAge)

	// Inbox defaults
	v.SetDefault("inbox.backend", "local")
	v.SetDefault("inbox.path", "inbox")
	v.SetDefault("inbox.bucket", "")
	v.SetDefault("inbox.extensions", DefaultMediaExtensions)
	v.SetDefault("inbox.delete_after_process", true)
	v.SetDefault("inbox.dropbox.app_key", "")
	v.SetDefault("inbox.dropbox.app_secret", "")
	v.SetDefault("inbox.dropbox.refresh_token", "")
	v.SetDefault("inbox.dropbox.api_url", "https://api.dropboxapi.com")
	v.SetDefault("inbox.dropbox.content_url", "https://content.dropboxapi.com")

	// Upload defaults
	setStoreDefaults(v, "upload", "uploads")

	// Summarizer defaults
	v.SetDefault("summarizer.provider", "gemini")
	v.SetDefault("summarizer.model", "gemini-2.0-flash")
	v.SetDefault("summarizer.base_url", "")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.project", "")
	v.SetDefault("summarizer.location", "us-central1")
	v.SetDefault("summarizer.credentials_file", "")
	v.SetDefault("summarizer.prompt", "")
	v.SetDefault("summarizer.timeout", defaultSummarizerTimeout)

	// Notify defaults
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.api_url", "https://api.pushover.net/1/messages.json")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.user_key", "")

	// Log shipping defaults
	v.SetDefault("logship.enabled", false)
	v.SetDefault("logship.key", "logs/vidbrief.log")
	v.SetDefault("logship.backup_strategy", "file")
	setStoreDefaults(v, "logship.store", "")

	// Schedule defaults
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", defaultScheduleCron)
	v.SetDefault("schedule.sync_interval", defaultSyncInterval)
}

func setStoreDefaults(v *viper.Viper, prefix, defaultPrefix string) {
	v.SetDefault(prefix+".backend", "local")
	v.SetDefault(prefix+".bucket", "")
	v.SetDefault(prefix+".prefix", defaultPrefix)
	v.SetDefault(prefix+".gcs.credentials_file", "")
	v.SetDefault(prefix+".s3.region", "us-east-1")
	v.SetDefault(prefix+".s3.endpoint", "")
	v.SetDefault(prefix+".s3.use_path_style", false)
	v.SetDefault(prefix+".local.dir", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if err := c.Transcode.Validate(); err != nil {
		return err
	}

	switch c.Pipeline.OnTranscodeFailure {
	case FailurePolicySkip, FailurePolicyUploadOriginal:
	default:
		return fmt.Errorf("pipeline.on_transcode_failure must be one of: skip, upload_original")
	}
	if c.Pipeline.MaxItemsPerRun < 1 {
		return fmt.Errorf("pipeline.max_items_per_run must be at least 1")
	}

	validInbox := map[string]bool{"local": true, "gcs": true, "dropbox": true}
	if !validInbox[c.Inbox.Backend] {
		return fmt.Errorf("inbox.backend must be one of: local, gcs, dropbox")
	}
	if c.Inbox.Backend == "gcs" && c.Inbox.Bucket == "" {
		return fmt.Errorf("inbox.bucket is required for the gcs backend")
	}

	if err := c.Upload.validate("upload"); err != nil {
		return err
	}
	if c.LogShip.Enabled {
		if err := c.LogShip.Store.validate("logship.store"); err != nil {
			return err
		}
		if c.LogShip.Key == "" {
			return fmt.Errorf("logship.key is required when log shipping is enabled")
		}
	}

	switch c.Summarizer.Provider {
	case "gemini", "vertex":
	default:
		return fmt.Errorf("summarizer.provider must be one of: gemini, vertex")
	}

	return nil
}

// Validate checks the transcoder tuning for values the bitrate plan cannot work with.
func (t *TranscodeConfig) Validate() error {
	if t.SizeCeiling <= 0 {
		return fmt.Errorf("transcode.size_ceiling must be positive")
	}
	if t.OverheadFactor <= 0 {
		return fmt.Errorf("transcode.overhead_factor must be positive")
	}
	if t.MinAudioBitrate > t.MaxAudioBitrate {
		return fmt.Errorf("transcode.min_audio_bitrate must not exceed transcode.max_audio_bitrate")
	}
	if t.AudioShareDivisor < 1 {
		return fmt.Errorf("transcode.audio_share_divisor must be at least 1")
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("transcode.max_attempts must be at least 1")
	}
	if t.AttemptTimeout < 0 {
		return fmt.Errorf("transcode.attempt_timeout must not be negative")
	}
	return nil
}

func (u *UploadConfig) validate(key string) error {
	switch u.Backend {
	case "local":
	case "gcs", "s3":
		if u.Bucket == "" {
			return fmt.Errorf("%s.bucket is required for the %s backend", key, u.Backend)
		}
	default:
		return fmt.Errorf("%s.backend must be one of: local, gcs, s3", key)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScratchPath returns the full path to the scratch directory.
func (c *StorageConfig) ScratchPath() string {
	if filepath.IsAbs(c.ScratchDir) {
		return c.ScratchDir
	}
	return filepath.Join(c.BaseDir, c.ScratchDir)
}

// ObjectsPath returns the full path to the local object store root.
func (c *StorageConfig) ObjectsPath() string {
	if filepath.IsAbs(c.ObjectsDir) {
		return c.ObjectsDir
	}
	return filepath.Join(c.BaseDir, c.ObjectsDir)
}
