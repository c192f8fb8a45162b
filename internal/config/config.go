// Package config holds the compiler options and loads them from
// optijit.yaml files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Options is the read-only configuration of a compiler instance.
type Options struct {
	// OptimisticTypes enables speculative typing and the program point
	// machinery. When off, every expression uses its pessimistic type.
	OptimisticTypes bool `yaml:"optimistic_types"`

	// SplitThreshold is the weight a compile unit must stay below.
	SplitThreshold int `yaml:"split_threshold"`

	// LazyCompilation compiles nested functions on first call instead of
	// together with their parent.
	LazyCompilation bool `yaml:"lazy_compilation"`

	// MaxProgramPoint bounds the program points of a single function.
	MaxProgramPoint int `yaml:"max_program_point"`

	// RecordEvaluatedTypes stores types found by evaluating expressions
	// against the runtime scope into the invalidation map, so that later
	// recompiles skip the speculation without evaluating again.
	RecordEvaluatedTypes bool `yaml:"record_evaluated_types"`

	// Verify checks generated units before installing them.
	Verify bool `yaml:"verify"`

	// TolerateBadOutput reports verification failures instead of failing
	// the compilation. Only the offending unit is left uninstalled.
	TolerateBadOutput bool `yaml:"tolerate_bad_output"`

	// FunctionStoreSize bounds the number of function trees kept for
	// on-demand recompilation.
	FunctionStoreSize int `yaml:"function_store_size"`

	Persistence Persistence `yaml:"persistence"`

	LogLevel string `yaml:"log_level"`

	// Timing prints accumulated phase durations after a compile.
	Timing bool `yaml:"timing"`
}

// Persistence configures the invalidation cache.
type Persistence struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the cache root. Entries live in a per-build subdirectory.
	Dir string `yaml:"dir"`

	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// MaxEntries is the limit applied by pruning.
	MaxEntries int `yaml:"max_entries"`

	// ReportWindow is the period within which at most one warning per
	// error class is logged.
	ReportWindow time.Duration `yaml:"report_window"`
}

// Default returns the built-in configuration.
func Default() Options {
	return Options{
		OptimisticTypes:      true,
		SplitThreshold:       DefaultSplitThreshold,
		MaxProgramPoint:      DefaultMaxProgramPoint,
		RecordEvaluatedTypes: true,
		Verify:               true,
		FunctionStoreSize:    DefaultFunctionStoreSize,
		Persistence: Persistence{
			Backend:      BackendFile,
			MaxEntries:   DefaultMaxEntries,
			ReportWindow: DefaultReportWindow,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads and validates the config at path.
func LoadConfig(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses YAML data over the defaults.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Options, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for optijit.yaml starting from dir and walking up
// to parent directories.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolving directory")
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Options) validate(path string) error {
	if c.SplitThreshold <= 0 {
		return errors.Errorf("%s: split_threshold must be positive, got %d", path, c.SplitThreshold)
	}
	if c.MaxProgramPoint < 1 || c.MaxProgramPoint > DefaultMaxProgramPoint {
		return errors.Errorf("%s: max_program_point must be in [1, %d], got %d", path, DefaultMaxProgramPoint, c.MaxProgramPoint)
	}
	if c.FunctionStoreSize < 0 {
		return errors.Errorf("%s: function_store_size must not be negative", path)
	}
	switch c.Persistence.Backend {
	case "", BackendFile, BackendSQLite:
	default:
		return errors.Errorf("%s: persistence.backend must be %q or %q, got %q", path, BackendFile, BackendSQLite, c.Persistence.Backend)
	}
	if c.Persistence.MaxEntries < 0 {
		return errors.Errorf("%s: persistence.max_entries must not be negative", path)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return errors.Wrapf(err, "%s: log_level", path)
	}
	return nil
}

// setDefaults fills in values left empty.
func (c *Options) setDefaults() {
	if c.FunctionStoreSize == 0 {
		c.FunctionStoreSize = DefaultFunctionStoreSize
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = BackendFile
	}
	if c.Persistence.MaxEntries == 0 {
		c.Persistence.MaxEntries = DefaultMaxEntries
	}
	if c.Persistence.ReportWindow <= 0 {
		c.Persistence.ReportWindow = DefaultReportWindow
	}
	if c.Persistence.Dir == "" {
		c.Persistence.Dir = DefaultCacheDir()
	} else {
		c.Persistence.Dir = expandHome(c.Persistence.Dir)
	}
}

// Level returns the configured log level, info if unparsable.
func (c *Options) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// DefaultCacheDir is the user cache directory for optijit, or a temp
// directory when the user has none.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, DefaultCacheDirName)
	}
	return filepath.Join(os.TempDir(), DefaultCacheDirName)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
