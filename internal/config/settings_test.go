package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Download.MaxParallel != DefaultMaxParallel {
		t.Errorf("MaxParallel = %d, expected %d", cfg.Download.MaxParallel, DefaultMaxParallel)
	}
	if cfg.Download.ChunkTimeout != DefaultChunkTimeout {
		t.Errorf("ChunkTimeout = %v, expected %v", cfg.Download.ChunkTimeout, DefaultChunkTimeout)
	}
	if cfg.Server.Address() != "127.0.0.1:8090" {
		t.Errorf("Address() = %s, expected 127.0.0.1:8090", cfg.Server.Address())
	}
	if cfg.Persistence.Driver != "sqlite" {
		t.Errorf("Driver = %s, expected sqlite", cfg.Persistence.Driver)
	}
	if cfg.Download.Directory == "" {
		t.Error("Download directory should not be empty")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.DefaultQuality != DefaultQuality {
		t.Errorf("DefaultQuality = %s, expected %s", cfg.Download.DefaultQuality, DefaultQuality)
	}
}

func TestLoad_FileAndClamping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9100
download:
  directory: /data/media
  max_parallel: 50
  chunk_timeout: 5s
  retry_attempts: -2
persistence:
  driver: Postgres
  dsn: host=db user=media
logger:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, expected 9100", cfg.Server.Port)
	}
	if cfg.Download.Directory != "/data/media" {
		t.Errorf("Directory = %s, expected /data/media", cfg.Download.Directory)
	}
	if cfg.Download.MaxParallel != MaxMaxParallel {
		t.Errorf("MaxParallel = %d, expected clamp to %d", cfg.Download.MaxParallel, MaxMaxParallel)
	}
	if cfg.Download.ChunkTimeout != 5*time.Second {
		t.Errorf("ChunkTimeout = %v, expected 5s", cfg.Download.ChunkTimeout)
	}
	if cfg.Download.RetryAttempts != 0 {
		t.Errorf("RetryAttempts = %d, expected clamp to 0", cfg.Download.RetryAttempts)
	}
	if cfg.Persistence.Driver != "postgres" {
		t.Errorf("Driver = %s, expected postgres", cfg.Persistence.Driver)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger level = %s, expected debug", cfg.Logger.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MEDIATASKD_DOWNLOAD_MAX_PARALLEL", "4")
	t.Setenv("MEDIATASKD_SERVER_HOST", "0.0.0.0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d, expected 4 from env", cfg.Download.MaxParallel)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %s, expected 0.0.0.0 from env", cfg.Server.Host)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestDownloadConfig_EstimatedSize(t *testing.T) {
	d := DownloadConfig{QualitySizes: DefaultQualitySizes()}

	tests := []struct {
		quality  string
		expected uint64
	}{
		{"360p", 15 * 1024 * 1024},
		{"480p", 25 * 1024 * 1024},
		{"720P", 50 * 1024 * 1024},
		{"1080p", 100 * 1024 * 1024},
		{"4k", DefaultEstimatedSize},
		{"", DefaultEstimatedSize},
	}

	for _, test := range tests {
		if got := d.EstimatedSize(test.quality); got != test.expected {
			t.Errorf("EstimatedSize(%q) = %d, expected %d", test.quality, got, test.expected)
		}
	}
}

func TestDownloadConfig_QualityOptions(t *testing.T) {
	d := DownloadConfig{QualitySizes: DefaultQualitySizes()}
	options := d.QualityOptions()
	expected := []string{"360p", "480p", "720p", "1080p"}
	if len(options) != len(expected) {
		t.Fatalf("QualityOptions() = %v, expected %v", options, expected)
	}
	for i := range expected {
		if options[i] != expected[i] {
			t.Errorf("QualityOptions()[%d] = %s, expected %s", i, options[i], expected[i])
		}
	}
}
