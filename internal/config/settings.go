package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ytget/media-taskd/internal/platform"
)

// EnvPrefix is prepended to every environment override, e.g. MEDIATASKD_SERVER_PORT
const EnvPrefix = "MEDIATASKD"

// Settings keys
const (
	KeyServerHost       = "server.host"
	KeyServerPort       = "server.port"
	KeyReadTimeout      = "server.read_timeout"
	KeyWriteTimeout     = "server.write_timeout"
	KeyShutdownTimeout  = "server.shutdown_timeout"
	KeyDownloadDir      = "download.directory"
	KeyMaxParallel      = "download.max_parallel"
	KeyChunkSize        = "download.chunk_size"
	KeyChunkTimeout     = "download.chunk_timeout"
	KeyRetryAttempts    = "download.retry_attempts"
	KeyRetryBackoff     = "download.retry_backoff"
	KeyRetryMaxBackoff  = "download.retry_max_backoff"
	KeyDefaultQuality   = "download.default_quality"
	KeyQualitySizes     = "download.quality_sizes"
	KeyUserAgent        = "fetch.user_agent"
	KeyFetchHeaders     = "fetch.headers"
	KeyPersistDriver    = "persistence.driver"
	KeyPersistPath      = "persistence.path"
	KeyPersistDSN       = "persistence.dsn"
	KeyPersistInterval  = "persistence.interval"
	KeyLoggerLevel      = "logger.level"
	KeyLoggerEncoding   = "logger.encoding"
	KeyLoggerOutputs    = "logger.output_paths"
	KeyLoggerErrOutputs = "logger.error_output_paths"
)

// Default values
const (
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8090
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxParallel     = 2
	DefaultChunkSize       = 256 * 1024
	DefaultChunkTimeout    = 30 * time.Second
	DefaultRetryAttempts   = 3
	DefaultRetryBackoff    = time.Second
	DefaultRetryMaxBackoff = 30 * time.Second
	DefaultQuality         = "720p"
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultPersistDriver   = "sqlite"
	DefaultPersistInterval = 2 * time.Second
	DefaultLoggerLevel     = "info"
	DefaultLoggerEncoding  = "console"

	// DefaultEstimatedSize is used for quality labels missing from the size table
	DefaultEstimatedSize = 25 * 1024 * 1024

	MinMaxParallel = 1
	MaxMaxParallel = 10
)

// DefaultQualitySizes maps quality labels to the expected rendition size in bytes.
// Only used as an estimate until the source reports a real length.
func DefaultQualitySizes() map[string]uint64 {
	return map[string]uint64{
		"360p":  15 * 1024 * 1024,
		"480p":  25 * 1024 * 1024,
		"720p":  50 * 1024 * 1024,
		"1080p": 100 * 1024 * 1024,
	}
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Download    DownloadConfig    `mapstructure:"download"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port for the listener
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DownloadConfig struct {
	Directory       string            `mapstructure:"directory"`
	MaxParallel     int               `mapstructure:"max_parallel"`
	ChunkSize       int               `mapstructure:"chunk_size"`
	ChunkTimeout    time.Duration     `mapstructure:"chunk_timeout"`
	RetryAttempts   int               `mapstructure:"retry_attempts"`
	RetryBackoff    time.Duration     `mapstructure:"retry_backoff"`
	RetryMaxBackoff time.Duration     `mapstructure:"retry_max_backoff"`
	DefaultQuality  string            `mapstructure:"default_quality"`
	QualitySizes    map[string]uint64 `mapstructure:"quality_sizes"`
}

// EstimatedSize returns the expected size for a quality label
func (d *DownloadConfig) EstimatedSize(quality string) uint64 {
	if size, ok := d.QualitySizes[strings.ToLower(quality)]; ok && size > 0 {
		return size
	}
	return DefaultEstimatedSize
}

// QualityOptions returns the known quality labels
func (d *DownloadConfig) QualityOptions() []string {
	options := make([]string, 0, len(d.QualitySizes))
	for _, q := range []string{"360p", "480p", "720p", "1080p"} {
		if _, ok := d.QualitySizes[q]; ok {
			options = append(options, q)
		}
	}
	return options
}

type FetchConfig struct {
	UserAgent string            `mapstructure:"user_agent"`
	Headers   map[string]string `mapstructure:"headers"`
}

type PersistenceConfig struct {
	Driver   string        `mapstructure:"driver"` // sqlite, postgres or none
	Path     string        `mapstructure:"path"`   // sqlite data directory
	DSN      string        `mapstructure:"dsn"`    // postgres connection string
	Interval time.Duration `mapstructure:"interval"`
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// setDefaults registers every default on v
func setDefaults(v *viper.Viper) {
	downloadsDir, err := platform.GetHomeDownloadsDir()
	if err != nil {
		downloadsDir = "/tmp/downloads"
	}

	v.SetDefault(KeyServerHost, DefaultServerHost)
	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyReadTimeout, DefaultReadTimeout)
	v.SetDefault(KeyWriteTimeout, DefaultWriteTimeout)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyDownloadDir, downloadsDir)
	v.SetDefault(KeyMaxParallel, DefaultMaxParallel)
	v.SetDefault(KeyChunkSize, DefaultChunkSize)
	v.SetDefault(KeyChunkTimeout, DefaultChunkTimeout)
	v.SetDefault(KeyRetryAttempts, DefaultRetryAttempts)
	v.SetDefault(KeyRetryBackoff, DefaultRetryBackoff)
	v.SetDefault(KeyRetryMaxBackoff, DefaultRetryMaxBackoff)
	v.SetDefault(KeyDefaultQuality, DefaultQuality)
	v.SetDefault(KeyQualitySizes, DefaultQualitySizes())
	v.SetDefault(KeyUserAgent, DefaultUserAgent)
	v.SetDefault(KeyFetchHeaders, map[string]string{})
	v.SetDefault(KeyPersistDriver, DefaultPersistDriver)
	v.SetDefault(KeyPersistPath, downloadsDir)
	v.SetDefault(KeyPersistInterval, DefaultPersistInterval)
	v.SetDefault(KeyLoggerLevel, DefaultLoggerLevel)
	v.SetDefault(KeyLoggerEncoding, DefaultLoggerEncoding)
	v.SetDefault(KeyLoggerOutputs, []string{"stdout"})
	v.SetDefault(KeyLoggerErrOutputs, []string{"stderr"})
}

// Load reads configuration from path (optional) and MEDIATASKD_* environment variables.
// A missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !platform.FileExists(path) {
				return finish(v)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// normalize clamps values that would make the service unusable
func (c *Config) normalize() {
	if c.Download.MaxParallel < MinMaxParallel {
		c.Download.MaxParallel = MinMaxParallel
	}
	if c.Download.MaxParallel > MaxMaxParallel {
		c.Download.MaxParallel = MaxMaxParallel
	}
	if c.Download.ChunkSize <= 0 {
		c.Download.ChunkSize = DefaultChunkSize
	}
	if c.Download.ChunkTimeout <= 0 {
		c.Download.ChunkTimeout = DefaultChunkTimeout
	}
	if c.Download.RetryAttempts < 0 {
		c.Download.RetryAttempts = 0
	}
	if len(c.Download.QualitySizes) == 0 {
		c.Download.QualitySizes = DefaultQualitySizes()
	}
	if c.Download.DefaultQuality == "" {
		c.Download.DefaultQuality = DefaultQuality
	}
	c.Persistence.Driver = strings.ToLower(c.Persistence.Driver)
}
