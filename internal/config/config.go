package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// Create new config instance with defaults applied
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     60,
			WriteTimeout:    180,
			IdleTimeout:     120,
			ShutdownTimeout: 10,
		},
		Upload: UploadConfig{
			MaxRequestBodyMB:     50,
			MaxMultipartMemoryMB: 16,
		},
		Convert: ConvertConfig{
			DefaultDPI:        200,
			AllowedExtensions: []string{".xlsx", ".xls", ".xlsm"},
		},
		Renderer: RendererConfig{
			Binary:        "libreoffice",
			Timeout:       60,
			MaxConcurrent: 4,
			QueueTimeout:  30,
		},
		Rasterizer: RasterizerConfig{
			Binary:  "pdftoppm",
			Timeout: 60,
			MaxDPI:  600,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Sentry: SentryConfig{
			Environment: "production",
		},
	}
}

// Load configuration file in json format. A missing file is not an
// error: defaults plus environment overrides apply.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
	}

	c.applyEnv()
	return c.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LIBREOFFICE_PATH"); v != "" {
		c.Renderer.Binary = v
	}
	if v := os.Getenv("PDFTOPPM_PATH"); v != "" {
		c.Rasterizer.Binary = v
	}
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Sentry.SentryDSN = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Upload.MaxRequestBodyMB < 1 {
		return fmt.Errorf("upload.max_request_body must be at least 1 MB")
	}
	if c.Rasterizer.MaxDPI < 1 {
		return fmt.Errorf("rasterizer.max_dpi must be positive")
	}
	if c.Convert.DefaultDPI < 1 || c.Convert.DefaultDPI > c.Rasterizer.MaxDPI {
		return fmt.Errorf("convert.default_dpi %d outside 1..%d", c.Convert.DefaultDPI, c.Rasterizer.MaxDPI)
	}
	if len(c.Convert.AllowedExtensions) == 0 {
		return fmt.Errorf("convert.allowed_extensions is empty")
	}
	if c.Renderer.Binary == "" || c.Rasterizer.Binary == "" {
		return fmt.Errorf("renderer and rasterizer binaries must be set")
	}
	if c.Renderer.MaxConcurrent < 1 {
		return fmt.Errorf("renderer.max_concurrent must be at least 1")
	}
	if c.Renderer.Timeout < 1 || c.Rasterizer.Timeout < 1 {
		return fmt.Errorf("renderer and rasterizer timeouts must be at least 1s")
	}
	if c.Renderer.QueueTimeout < 1 {
		return fmt.Errorf("renderer.queue_timeout must be at least 1s")
	}
	return nil
}
