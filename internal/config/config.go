// ABOUTME: Configuration loading for ttcache from defaults, a JSON or HCL file, and TTCACHE_ env vars
// ABOUTME: Save merges the setup wizard's keys back into config.json with an atomic rename

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config stores ttcache configuration.
type Config struct {
	ServerURL string `json:"server_url" hcl:"server_url" env:"SERVER_URL"`
	Username  string `json:"username" hcl:"username" env:"USERNAME"`
	Password  string `json:"password" hcl:"password" env:"PASSWORD"`

	// DataDir holds ttcache.db. Supports ~ expansion. Defaults to
	// ~/.local/share/ttcache.
	DataDir string `json:"data_dir" hcl:"data_dir" env:"DATA_DIR"`

	WorkOffline bool `json:"work_offline" hcl:"work_offline" env:"WORK_OFFLINE"`

	UpdateWindow    time.Duration `json:"update_window" hcl:"update_window" env:"UPDATE_WINDOW" default:"30m"`
	RetainLimit     int           `json:"retain_limit" hcl:"retain_limit" env:"RETAIN_LIMIT" default:"5000"`
	HeadlineLimit   int           `json:"headline_limit" hcl:"headline_limit" env:"HEADLINE_LIMIT" default:"1000"`
	PageSize        int           `json:"page_size" hcl:"page_size" env:"PAGE_SIZE" default:"200"`
	FreshMaxAge     time.Duration `json:"fresh_max_age" hcl:"fresh_max_age" env:"FRESH_MAX_AGE" default:"24h"`
	PurgeAfter      time.Duration `json:"purge_after" hcl:"purge_after" env:"PURGE_AFTER" default:"0s"`
	CleanupInterval time.Duration `json:"cleanup_interval" hcl:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"24h"`
	ConnectTimeout  time.Duration `json:"connect_timeout" hcl:"connect_timeout" env:"CONNECT_TIMEOUT" default:"300ms"`
	HTTPTimeout     time.Duration `json:"http_timeout" hcl:"http_timeout" env:"HTTP_TIMEOUT" default:"30s"`
	SyncInterval    time.Duration `json:"sync_interval" hcl:"sync_interval" env:"SYNC_INTERVAL" default:"5m"`
	Workers         int           `json:"workers" hcl:"workers" env:"WORKERS" default:"4"`
	DownloadIcons   bool          `json:"download_icons" hcl:"download_icons" env:"DOWNLOAD_ICONS"`

	MetricsAddr string `json:"metrics_addr" hcl:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `json:"log_level" hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat   string `json:"log_format" hcl:"log_format" env:"LOG_FORMAT" default:"text"`
}

// ErrNoServer is returned by Validate when no server URL is configured.
var ErrNoServer = errors.New("no server configured, run 'ttcache setup'")

// GetConfigDir returns the directory holding config.json or config.hcl.
func GetConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "ttcache")
}

// GetConfigPath returns the JSON config file path.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// Load reads config from the default locations and the environment.
func Load() (*Config, error) {
	dir := GetConfigDir()
	return LoadFiles(filepath.Join(dir, "config.json"), filepath.Join(dir, "config.hcl"))
}

// LoadFiles reads config from the first existing file among files, then
// applies environment overrides. Missing files are not an error.
func LoadFiles(files ...string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: EnvPrefix,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the sync engine cannot work with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrNoServer
	}
	switch {
	case c.RetainLimit <= 0:
		return fmt.Errorf("retain_limit must be positive, got %d", c.RetainLimit)
	case c.PageSize <= 0:
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.UpdateWindow <= 0:
		return fmt.Errorf("update_window must be positive, got %v", c.UpdateWindow)
	}
	return nil
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), DBFilename)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Save writes the server credentials and the offline flag into the JSON
// config file, keeping any other keys already there.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo is Save against an explicit file.
func (c *Config) SaveTo(path string) error {
	doc := map[string]interface{}{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return err
	}

	doc["server_url"] = c.ServerURL
	doc["username"] = c.Username
	doc["password"] = c.Password
	doc["work_offline"] = c.WorkOffline
	if c.DataDir != "" {
		doc["data_dir"] = c.DataDir
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, append(out, '\n'))
}

// atomicWrite writes data to a temp file in the target directory and renames
// it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPerms); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// defaultDataDir returns the standard XDG data directory for ttcache.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "ttcache")
}
