package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type APIConfig struct {
	BaseURL   string `json:"baseUrl"`   // search endpoint host, e.g. http://192.168.0.166:3333
	SocketURL string `json:"socketUrl"` // realtime server; defaults to BaseURL
	Timeout   string `json:"timeout"`   // Go duration, e.g. "10s"
}

type LocationConfig struct {
	Mode      string  `json:"mode"` // "static", "ip", or "off"
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	LookupURL string  `json:"lookupUrl"` // used by "ip" mode
}

type NotificationsConfig struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
	Desktop bool   `json:"desktop"`
}

type DashboardConfig struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port"`
	Host      string `json:"host"`
	JWTSecret string `json:"jwtSecret"` // empty disables auth
	TokenTTL  string `json:"tokenTtl"`
}

type Config struct {
	API           APIConfig           `json:"api"`
	Location      LocationConfig      `json:"location"`
	DefaultTechs  string              `json:"defaultTechs"`
	Notifications NotificationsConfig `json:"notifications"`
	Dashboard     DashboardConfig     `json:"dashboard"`
	HistoryDays   int                 `json:"historyDays"` // 0 keeps history forever
	LogDir        string              `json:"logDir"`
	LogLevel      string              `json:"logLevel"`
}

func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:3333",
			Timeout: "10s",
		},
		Location: LocationConfig{
			Mode:      "ip",
			LookupURL: "http://ip-api.com/json/",
		},
		Dashboard: DashboardConfig{
			Enabled:  false,
			Port:     8090,
			Host:     "127.0.0.1",
			TokenTTL: "24h",
		},
		HistoryDays: 30,
		LogDir:      filepath.Join(baseDir(), "logs"),
		LogLevel:    "info",
	}
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".devradar")
}

func DefaultPath() string {
	return filepath.Join(baseDir(), "config.json")
}

func DBPath() string {
	return filepath.Join(baseDir(), "state.db")
}

// SocketURL returns the realtime server address, falling back to the API
// base URL when no separate socket host is configured.
func (c Config) SocketURL() string {
	if c.API.SocketURL != "" {
		return c.API.SocketURL
	}
	return c.API.BaseURL
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Timeout parses API.Timeout, falling back to ten seconds.
func (c Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// TokenTTL parses Dashboard.TokenTTL, falling back to a day.
func (c Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.Dashboard.TokenTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// EnsureJWTSecret generates and persists a dashboard secret when the
// dashboard is enabled without one.
func EnsureJWTSecret(path string, cfg *Config) error {
	if !cfg.Dashboard.Enabled || cfg.Dashboard.JWTSecret != "" {
		return nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	cfg.Dashboard.JWTSecret = hex.EncodeToString(b)
	return Save(path, *cfg)
}
