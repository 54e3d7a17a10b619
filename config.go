package rconkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of an RCON host. TOML is the default
// format; files ending in .yaml or .yml are read as YAML.
type Config struct {
	Rcon     RconConfig    `toml:"rcon" yaml:"rcon"`
	Paths    PathsConfig   `toml:"paths" yaml:"paths"`
	Logging  LoggingConfig `toml:"logging" yaml:"logging"`
	filePath string
}

// RconConfig holds the initial values of the rcon_* cvars and server options.
type RconConfig struct {
	Password       string `toml:"password" yaml:"password"`
	Port           int    `toml:"port" yaml:"port"`
	Timeout        int    `toml:"timeout" yaml:"timeout"`
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Log            bool   `toml:"log" yaml:"log"`
	AllowList      string `toml:"allow_list" yaml:"allow_list"`
	WatchAllowList bool   `toml:"watch_allow_list" yaml:"watch_allow_list"`
	RejectPolicy   string `toml:"reject_policy" yaml:"reject_policy"`
	// WriteWait is the per-message write deadline in seconds.
	WriteWait int `toml:"write_wait" yaml:"write_wait"`
}

// PathsConfig contains filesystem locations.
type PathsConfig struct {
	DataDir string `toml:"data_dir" yaml:"data_dir"`
}

// LoggingConfig contains logger and audit settings.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	AuditFile  string `toml:"audit_file" yaml:"audit_file"`
}

// NewConfig returns defaults bound to path.
func NewConfig(path string) *Config {
	return &Config{
		Rcon: RconConfig{
			Password:       "password",
			Port:           DefaultPort,
			Timeout:        5,
			AllowList:      "",
			WatchAllowList: true,
			RejectPolicy:   "broadcast",
			WriteWait:      int(DefaultWriteWait / time.Second),
		},
		Paths: PathsConfig{
			DataDir: "data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 10,
		},
		filePath: path,
	}
}

// LoadConfig reads path over the defaults. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig(path)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration from file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if c.isYAML() {
		err = yaml.Unmarshal(data, c)
	} else {
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

// Save writes the configuration to file.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	var err error
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(c.filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// FilePath returns the path to the config file.
func (c *Config) FilePath() string {
	return c.filePath
}

func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// CVarSetter is the part of the cvar store Seed needs.
type CVarSetter interface {
	Set(name, value string)
}

// Seed pushes the rcon values into the cvar store.
func (c *Config) Seed(vars CVarSetter) {
	vars.Set(CvarPassword, c.Rcon.Password)
	vars.Set(CvarPort, strconv.Itoa(c.Rcon.Port))
	vars.Set(CvarTimeout, strconv.Itoa(c.Rcon.Timeout))
	vars.Set(CvarLog, boolString(c.Rcon.Log))
	vars.Set(CvarEnabled, boolString(c.Rcon.Enabled))
}

// PluginConfig returns the plugin options described by c. The caller fills
// in the host collaborators.
func (c *Config) PluginConfig() (PluginConfig, error) {
	policy, err := ParseRejectPolicy(c.Rcon.RejectPolicy)
	if err != nil {
		return PluginConfig{}, err
	}
	return PluginConfig{
		DataDir:        c.Paths.DataDir,
		AllowListFile:  c.Rcon.AllowList,
		WatchAllowList: c.Rcon.WatchAllowList,
		RejectPolicy:   policy,
		WriteWait:      time.Duration(c.Rcon.WriteWait) * time.Second,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
