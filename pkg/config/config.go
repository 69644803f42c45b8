package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RhyVis/meta-manager/pkg/types"
	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file looked up in the working directory
	FileName = "config.toml"

	// EnvPrefix namespaces environment overrides, e.g. META_CONF_DATA_DIR
	// or META_CONF_ARCHIVE__COMPRESSION_LEVEL for nested keys.
	EnvPrefix = "META_CONF"

	defaultDataDir = "data"
	appName        = "meta-manager"
)

// Config is the process-wide configuration
type Config struct {
	DataDir string        `mapstructure:"data_dir" toml:"data_dir"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
	Archive ArchiveConfig `mapstructure:"archive" toml:"archive"`
	Backup  BackupConfig  `mapstructure:"backup" toml:"backup"`

	// baseDir anchors a relative DataDir; it is the directory holding the
	// config file, or the working directory when none was found.
	baseDir string
}

// LogConfig controls pkg/log initialization
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
	JSON  bool   `mapstructure:"json" toml:"json"`
}

// ArchiveConfig controls the archive codecs
type ArchiveConfig struct {
	CompressionLevel int    `mapstructure:"compression_level" toml:"compression_level"`
	PreferExternal   bool   `mapstructure:"prefer_external" toml:"prefer_external"`
	SevenZipBinary   string `mapstructure:"seven_zip_binary" toml:"seven_zip_binary"`
}

// BackupConfig controls store backup rotation
type BackupConfig struct {
	Keep int `mapstructure:"keep" toml:"keep"`
}

// Default returns the configuration used when no file or env override exists
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir,
		Log:     LogConfig{Level: "info"},
		Archive: ArchiveConfig{
			CompressionLevel: 5,
			PreferExternal:   true,
			SevenZipBinary:   "7z",
		},
		Backup: BackupConfig{Keep: 4},
	}
}

// Load reads configuration from path (or ./config.toml when empty), then
// applies META_CONF_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	def := Default()
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.json", def.Log.JSON)
	v.SetDefault("archive.compression_level", def.Archive.CompressionLevel)
	v.SetDefault("archive.prefer_external", def.Archive.PreferExternal)
	v.SetDefault("archive.seven_zip_binary", def.Archive.SevenZipBinary)
	v.SetDefault("backup.keep", def.Backup.Keep)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	baseDir, err := os.Getwd()
	if err != nil {
		baseDir = "."
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(baseDir, FileName)
	}
	v.SetConfigFile(path)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config %s: %v", types.ErrConfig, path, err)
		}
		if explicit {
			return nil, fmt.Errorf("%w: config file %s does not exist", types.ErrConfig, path)
		}
		found = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %v", types.ErrConfig, err)
	}

	cfg.baseDir = baseDir
	if found {
		cfg.baseDir = filepath.Dir(path)
	} else if os.Getenv(EnvPrefix+"_DATA_DIR") == "" {
		// Without a config file or override, keep data under XDG data home.
		cfg.DataDir = filepath.Join(xdg.DataHome, appName)
	}

	return &cfg, nil
}

// DataDirPath resolves the configured data directory to an absolute path
func (c *Config) DataDirPath() (string, error) {
	dir := c.DataDir
	if dir == "" {
		return "", fmt.Errorf("%w: data_dir is empty", types.ErrConfig)
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: expanding %s: %v", types.ErrConfig, dir, err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	if !filepath.IsAbs(dir) {
		base := c.baseDir
		if base == "" {
			base = "."
		}
		dir = filepath.Join(base, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %v", types.ErrConfig, dir, err)
	}
	return abs, nil
}

// EnsureDataDir resolves the data directory and creates it when missing
func (c *Config) EnsureDataDir() (string, error) {
	dir, err := c.DataDirPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating data dir %s: %v", types.ErrConfig, dir, err)
	}
	return dir, nil
}

// WriteDefault writes the default configuration to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	data, err := toml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("%w: encoding default config: %v", types.ErrConfig, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrConfig, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("%w: writing %s: %v", types.ErrConfig, path, err)
	}
	return true, nil
}
