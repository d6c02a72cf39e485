package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wireconv/internal/converter"
)

// wireconvd config.toml key mapping to converter settings.
type fileConfig struct {
	ID              string   `toml:"id"`
	HTTPAddr        string   `toml:"http_addr"`
	TCPAddr         string   `toml:"tcp_addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	SchemaDriver    string   `toml:"schema_driver"`
	SchemaPath      string   `toml:"schema_path"`
	ReadTimeout     string   `toml:"read_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	MaxMessageChars int      `toml:"max_message_chars"`
	ReloadOnSIGHUP  bool     `toml:"reload_on_sighup"`
}

// wireconvd loader for TOML config with default overlay.
func loadServiceConfig(path string) (converter.ServiceConfig, error) {
	cfg := converter.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return converter.ServiceConfig{}, fmt.Errorf("load wireconvd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return converter.ServiceConfig{}, fmt.Errorf("load wireconvd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("tcp_addr") {
		cfg.TCPAddr = strings.TrimSpace(raw.TCPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = trimAll(raw.CORSOrigins)
	}
	if meta.IsDefined("schema_driver") {
		cfg.SchemaDriver = strings.ToLower(strings.TrimSpace(raw.SchemaDriver))
	}
	if meta.IsDefined("schema_path") {
		cfg.SchemaPath = resolvePath(path, raw.SchemaPath)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return converter.ServiceConfig{}, fmt.Errorf("load wireconvd config: read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return converter.ServiceConfig{}, fmt.Errorf("load wireconvd config: write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("max_message_chars") {
		cfg.MaxMessageChars = raw.MaxMessageChars
	}
	if meta.IsDefined("reload_on_sighup") {
		cfg.ReloadOnSIGHUP = raw.ReloadOnSIGHUP
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return converter.ServiceConfig{}, fmt.Errorf("load wireconvd config: %w", err)
	}
	return cfg, nil
}

// resolvePath makes schema_path relative to the config file's directory.
func resolvePath(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		if v := strings.TrimSpace(raw); v != "" {
			out = append(out, v)
		}
	}
	return out
}
