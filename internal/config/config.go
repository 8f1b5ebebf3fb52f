package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the framewatch server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Media    MediaConfig
	Detect   DetectConfig
	FFmpeg   FFmpegConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type MediaConfig struct {
	Root           string // base directory holding videos/<user>/...
	SampleDir      string // directory with the bundled sample videos
	MaxUploadBytes int64
}

type DetectConfig struct {
	Provider   string // "sidecar" or "mock"
	ModelPath  string // weights file; must exist before the first job runs
	Device     string // "cpu", "cuda", or "" for autodetect
	BaseURL    string // sidecar inference server
	Confidence float64
	IoU        float64
	Timeout    time.Duration
}

type FFmpegConfig struct {
	FFmpegBin  string
	FFprobeBin string
}

type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration // wall-clock ceiling per job, enforced by the worker
	MetricsPort int
}

var validProviders = map[string]bool{
	"sidecar": true,
	"mock":    true,
}

var validDevices = map[string]bool{
	"":     true,
	"cpu":  true,
	"cuda": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FRAMEWATCH_PORT", 8080),
			Env:  envString("FRAMEWATCH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Media: MediaConfig{
			Root:           envString("MEDIA_ROOT", "media"),
			SampleDir:      envString("SAMPLE_VIDEO_DIR", "media/sample_videos"),
			MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
		},
		Detect: DetectConfig{
			Provider:   envString("DETECTOR_PROVIDER", "sidecar"),
			ModelPath:  os.Getenv("DETECTOR_MODEL_PATH"),
			Device:     os.Getenv("DETECTOR_DEVICE"),
			BaseURL:    envString("DETECTOR_BASE_URL", "http://localhost:9400"),
			Confidence: envFloat("DETECTOR_CONFIDENCE_THRESHOLD", 0.5),
			IoU:        envFloat("DETECTOR_IOU_THRESHOLD", 0.45),
			Timeout:    envDuration("DETECTOR_TIMEOUT", 30*time.Second),
		},
		FFmpeg: FFmpegConfig{
			FFmpegBin:  envString("FFMPEG_BIN", "ffmpeg"),
			FFprobeBin: envString("FFPROBE_BIN", "ffprobe"),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", 2),
			JobTimeout:  envDuration("WORKER_JOB_TIMEOUT", 30*time.Minute),
			MetricsPort: envInt("WORKER_METRICS_PORT", 9090),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.Detect.Provider] {
		return fmt.Errorf("DETECTOR_PROVIDER must be one of sidecar, mock; got %q", c.Detect.Provider)
	}
	if c.Detect.Provider == "sidecar" && c.Detect.ModelPath == "" {
		return fmt.Errorf("DETECTOR_MODEL_PATH is required when DETECTOR_PROVIDER is sidecar")
	}
	if !validDevices[c.Detect.Device] {
		return fmt.Errorf("DETECTOR_DEVICE must be cpu, cuda, or empty for autodetect; got %q", c.Detect.Device)
	}
	if c.Detect.Confidence < 0 || c.Detect.Confidence > 1 {
		return fmt.Errorf("DETECTOR_CONFIDENCE_THRESHOLD must be in [0,1]; got %v", c.Detect.Confidence)
	}
	if c.Detect.IoU < 0 || c.Detect.IoU > 1 {
		return fmt.Errorf("DETECTOR_IOU_THRESHOLD must be in [0,1]; got %v", c.Detect.IoU)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1; got %d", c.Worker.Concurrency)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
