package config

import "time"

type Config struct {
	Server     ServerConfig     `json:"server"`
	Upload     UploadConfig     `json:"upload"`
	Convert    ConvertConfig    `json:"convert"`
	Renderer   RendererConfig   `json:"renderer"`
	Rasterizer RasterizerConfig `json:"rasterizer"`
	Workspace  WorkspaceConfig  `json:"workspace"`
	Logger     LoggerConfig     `json:"logger"`
	Sentry     SentryConfig     `json:"sentry"`
}

type ServerConfig struct {
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`     // seconds
	WriteTimeout    time.Duration `json:"write_timeout"`    // seconds, must cover a full pipeline run
	IdleTimeout     time.Duration `json:"idle_timeout"`     // seconds
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // seconds to drain on SIGTERM
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

type ConvertConfig struct {
	DefaultDPI        int      `json:"default_dpi"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

type RendererConfig struct {
	Binary        string        `json:"binary"`
	Timeout       time.Duration `json:"timeout"`        // seconds per render
	MaxConcurrent int           `json:"max_concurrent"` // parallel office processes
	QueueTimeout  time.Duration `json:"queue_timeout"`  // seconds waiting for a render slot
}

type RasterizerConfig struct {
	Binary  string        `json:"binary"`
	Timeout time.Duration `json:"timeout"` // seconds per rasterization
	MaxDPI  int           `json:"max_dpi"`
}

type WorkspaceConfig struct {
	Root string `json:"root"` // empty means a service dir under the OS temp dir
}

type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
