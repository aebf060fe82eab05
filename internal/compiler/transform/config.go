package transform

import (
	"go/importer"
	"go/types"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/sugar/internal/logging"
)

// DefaultMaxExpansionDepth bounds nested expansion when the config does not
const DefaultMaxExpansionDepth = 32

// DefaultTimeout is the budget of a single compile-time evaluation
const DefaultTimeout = 5 * time.Second

// Config holds the options of one transformer
type Config struct {
	// Verbose enables progress logging when no Logger is given
	Verbose bool
	// Timeout is the budget of any single evaluating macro
	Timeout time.Duration
	// MacroDirectories hold additional macro manifests to validate and merge
	MacroDirectories []string
	// MaxExpansionDepth bounds re-scanning of expansion output
	MaxExpansionDepth int
	// Debug is visible to macros through their context
	Debug bool
	// WarningsAsErrors promotes every warning diagnostic to an error
	WarningsAsErrors bool
	// DisableSourceMaps skips the source map of transformed files
	DisableSourceMaps bool

	Logger *zap.Logger
	// Importer resolves imports during best-effort type checking
	Importer types.Importer
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		MaxExpansionDepth: DefaultMaxExpansionDepth,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxExpansionDepth <= 0 {
		c.MaxExpansionDepth = DefaultMaxExpansionDepth
	}
	if c.Logger == nil {
		c.Logger = logging.New(c.Verbose)
	}
	if c.Importer == nil {
		c.Importer = importer.Default()
	}
	return c
}
