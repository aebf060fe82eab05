package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/compiler/transform"
)

// FileNames are the config files looked up in a project root
var FileNames = []string{"sugar.yml", "sugar.yaml"}

// EnvPrefix prefixes the environment variables overriding config keys
const EnvPrefix = "SUGAR"

// Config represents the sugar configuration
type Config struct {
	Verbose bool `mapstructure:"verbose"`
	// Timeout is the compile-time evaluation budget in milliseconds
	Timeout           int      `mapstructure:"timeout"`
	MacroDirectories  []string `mapstructure:"macro_directories"`
	MaxExpansionDepth int      `mapstructure:"max_expansion_depth"`
	// Manifest is a macro manifest file watched by the watch command
	Manifest         string `mapstructure:"manifest"`
	Debug            bool   `mapstructure:"debug"`
	WarningsAsErrors bool   `mapstructure:"warnings_as_errors"`
	SourceMaps       bool   `mapstructure:"source_maps"`
}

// Load loads the configuration from sugar.yml or sugar.yaml in dir, or the
// current directory when dir is empty
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("verbose", false)
	v.SetDefault("timeout", int(transform.DefaultTimeout/time.Millisecond))
	v.SetDefault("macro_directories", []string{})
	v.SetDefault("max_expansion_depth", transform.DefaultMaxExpansionDepth)
	v.SetDefault("manifest", "")
	v.SetDefault("debug", false)
	v.SetDefault("warnings_as_errors", false)
	v.SetDefault("source_maps", true)

	if dir == "" {
		dir = "."
	}
	v.SetConfigName("sugar")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	// a comma separated env value arrives as one element
	config.MacroDirectories = splitList(config.MacroDirectories)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Transform returns the transformer configuration
func (c *Config) Transform(logger *zap.Logger) transform.Config {
	return transform.Config{
		Verbose:           c.Verbose,
		Timeout:           time.Duration(c.Timeout) * time.Millisecond,
		MacroDirectories:  c.MacroDirectories,
		MaxExpansionDepth: c.MaxExpansionDepth,
		Debug:             c.Debug,
		WarningsAsErrors:  c.WarningsAsErrors,
		DisableSourceMaps: !c.SourceMaps,
		Logger:            logger,
	}
}

// GetProjectRoot walks up from the current directory to the first
// directory holding a sugar config file
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no sugar.yml found in this directory or any parent")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Timeout <= 0 {
		return errors.Newf("timeout must be a positive number of milliseconds, got: %d", cfg.Timeout)
	}
	if cfg.MaxExpansionDepth <= 0 {
		return errors.Newf("max_expansion_depth must be positive, got: %d", cfg.MaxExpansionDepth)
	}
	return nil
}
