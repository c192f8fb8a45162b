package config

import "time"

// ConfigFileNames are the file names FindConfig looks for.
var ConfigFileNames = []string{"optijit.yaml", "optijit.yml"}

// AstFileExtensions are the recognized AST document extensions.
var AstFileExtensions = []string{".yaml", ".yml"}

// Compiler defaults
const (
	DefaultSplitThreshold    = 32 * 1024
	DefaultMaxProgramPoint   = 1<<21 - 1
	DefaultFunctionStoreSize = 256
	// MaxParamCount is the number of parameters above which a function
	// receives its arguments as an array.
	MaxParamCount = 250
)

// Persistence defaults
const (
	DefaultCacheDirName = "optijit"
	DefaultMaxEntries   = 4096
	DefaultReportWindow = 60 * time.Second
	// FormatVersion is bumped whenever the persisted encoding changes.
	FormatVersion = 1
)

// Persistence backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)
