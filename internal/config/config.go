package config

import (
	"os"
	"runtime"
)

// Default resource limits for indexing.
const (
	DefaultMaxFileSize    = 10 * 1024 * 1024 // 10MB per file
	DefaultMaxTotalSizeMB = 500
	DefaultMaxFileCount   = 10000
)

type Config struct {
	Version              int
	Project              Project
	Index                Index
	Performance          Performance
	Search               Search
	Include              []string
	Exclude              []string
	PropagationConfigDir string // Directory for propagation configuration files
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	SmartSizeControl bool
	PriorityMode     string // "recent", "small", "important"
	RespectGitignore bool   // Process .gitignore files for additional exclusions
	WatchMode        bool   // Enable file system watching for automatic reindexing
	WatchDebounceMs  int    // Debounce time for file change events
	BatchSize        int    // Documents staged before a build_by_batch flush
}

type Performance struct {
	MaxMemoryMB         int // Maximum memory usage in MB
	MaxGoroutines       int // Maximum number of goroutines for indexing
	DebounceMs          int // Debounce time in milliseconds for file change events
	ParallelFileWorkers int // 0 = auto-detect (NumCPU)
	IndexingTimeoutSec  int // Timeout for indexing operations in seconds (default: 120)
	StartupDelayMs      int // Delay before auto-indexing starts (default: 1500ms)
}

type Search struct {
	DefaultContextLines int  // Default number of context lines to include
	MaxResults          int  // Maximum number of search results
	MaxContextLines     int  // Maximum number of context lines
	MergeFileResults    bool // Merge results from the same file
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

func LoadWithRoot(path string, rootDir string) (*Config, error) {
	// Determine search directory for config files
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	// Step 1: Load global base config from ~/.lci.kdl (if exists)
	homeDir, err := os.UserHomeDir()
	var baseConfig *Config
	if err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: Load project-specific config from project directory
	var projectConfig *Config
	if kdlCfg, err := LoadKDL(searchDir); err == nil && kdlCfg != nil {
		projectConfig = kdlCfg
	} else if err != nil {
		return nil, err
	}

	// Step 3: Merge configs (project overrides base, but preserve base exclusions)
	if baseConfig != nil && projectConfig != nil {
		return mergeConfigs(baseConfig, projectConfig), nil
	} else if projectConfig != nil {
		return projectConfig, nil
	} else if baseConfig != nil {
		// Use base config but update project root
		baseConfig.Project.Root = searchDir
		return baseConfig, nil
	}

	// Default config
	// Use current working directory as absolute path for consistency
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "." // Fallback to relative if we can't get absolute
	}

	cfg := &Config{
		Version: 1,
		Project: Project{
			Root: cwd,
		},
		Index: Index{
			MaxFileSize:      DefaultMaxFileSize,
			MaxTotalSizeMB:   DefaultMaxTotalSizeMB,
			MaxFileCount:     DefaultMaxFileCount,
			FollowSymlinks:   false,
			SmartSizeControl: true,     // Enable intelligent size management
			PriorityMode:     "recent", // Prefer recently modified files
			RespectGitignore: true,     // Process .gitignore files by default
			WatchMode:        true,     // Enable file watching by default
			WatchDebounceMs:  300,      // 300ms debounce for file changes
			BatchSize:        10000,    // default build_by_batch flush threshold
		},
		Performance: Performance{
			MaxMemoryMB:         500,
			MaxGoroutines:       runtime.NumCPU(),
			DebounceMs:          100,
			ParallelFileWorkers: 0,    // 0 = auto-detect (NumCPU)
			IndexingTimeoutSec:  120,  // 120 seconds for large projects
			StartupDelayMs:      1500, // 1.5 second delay to let callers attach before indexing begins
		},
		Search: Search{
			DefaultContextLines: 0,
			MaxResults:          100,
			MaxContextLines:     100,
			MergeFileResults:    true,
		},
		Include: []string{},
		Exclude: defaultExclusions(),
	}

	// Enrich exclusions with language-specific build artifacts
	cfg.EnrichExclusionsWithBuildArtifacts()

	return cfg, nil
}

// mergeConfigs merges a base config with a project config
// Project config takes precedence, but base exclusions are preserved
func mergeConfigs(base, project *Config) *Config {
	// Start with a copy of the project config
	merged := *project

	// Merge exclusions: combine base and project exclusions
	if len(base.Exclude) > 0 {
		// Use a map to deduplicate
		excludeMap := make(map[string]bool)

		// Add base exclusions first
		for _, pattern := range base.Exclude {
			excludeMap[pattern] = true
		}

		// Add project exclusions
		for _, pattern := range project.Exclude {
			excludeMap[pattern] = true
		}

		// Convert back to slice
		merged.Exclude = make([]string, 0, len(excludeMap))
		for pattern := range excludeMap {
			merged.Exclude = append(merged.Exclude, pattern)
		}
	}

	// Merge inclusions: project overrides base completely if specified
	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	// Use project settings for everything else (already copied above)
	return &merged
}

// defaultExclusions is the exclusion set used when no config file provides
// one: repository metadata, dependency trees, build output, generated code,
// tests, caches, editor droppings, logs. Binary media needs no patterns
// here; the scanner already rejects it by extension and content.
func defaultExclusions() []string {
	return []string{
		// repository metadata and hidden directories generally
		"**/.git/**",
		"**/.*/**",

		// dependency trees
		"**/node_modules/**", "**/vendor/**", "**/bower_components/**",
		"**/venv/**", "**/.venv/**", "**/site-packages/**", "**/Pods/**",

		// build output
		"**/dist/**", "**/build/**", "**/out/**", "**/target/**",
		"**/bin/**", "**/obj/**", "**/CMakeFiles/**",

		// generated and minified code
		"**/*.min.js", "**/*.min.css", "**/*.bundle.js", "**/*.chunk.js",
		"**/*.min.map",

		// tests and fixtures
		"**/*_test.go", "**/*_test.py", "**/test_*.py",
		"**/*.test.js", "**/*.test.ts", "**/*.spec.js", "**/*.spec.ts",
		"**/__tests__/**", "**/test/**", "**/tests/**",
		"**/testdata/**", "**/fixtures/**",

		// caches and compiled intermediates
		"**/__pycache__/**", "**/*.pyc",

		// editor and OS droppings
		"**/*.swp", "**/*.swo", "**/*~", "**/*.bak", "**/*.orig",
		"**/Thumbs.db", "**/desktop.ini", "**/.DS_Store",

		// logs
		"**/logs/**", "**/*.log",
	}
}

// EnrichExclusionsWithBuildArtifacts adds exclusion globs for the build
// output directories of whatever build systems the project root declares.
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detected := detectBuildArtifacts(c.Project.Root)
	if len(detected) == 0 {
		return
	}
	c.Exclude = dedupePatterns(append(c.Exclude, detected...))
}
