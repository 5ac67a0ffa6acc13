package config

import (
	"fmt"
	"path/filepath"
	"runtime"

	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

// Bounds enforced by Normalize. MaxFileSize above the cap would let a
// single file dominate index memory; MaxMemoryMB below the floor cannot
// hold the engine's working set.
const (
	maxFileSizeCap = 100 * 1024 * 1024
	minMemoryMB    = 100
)

// Normalize is the one gate between loaded configuration and the rest of
// the tree: it rejects values the indexer cannot work with and fills every
// unset knob with a workable default. A zero means "auto" for the knobs
// that can be derived (worker counts, memory); it is an error for the
// limits that cannot.
func Normalize(cfg *Config) error {
	if cfg.Project.Root == "" {
		return badField("project.root", "", "a project root is required")
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}

	checks := []struct {
		field string
		got   int64
		ok    bool
		want  string
	}{
		{"index.max_file_size", cfg.Index.MaxFileSize, cfg.Index.MaxFileSize > 0, "a positive size"},
		{"index.max_file_size", cfg.Index.MaxFileSize, cfg.Index.MaxFileSize <= maxFileSizeCap, "at most 100MB"},
		{"index.max_total_size_mb", cfg.Index.MaxTotalSizeMB, cfg.Index.MaxTotalSizeMB > 0, "a positive size"},
		{"index.max_file_count", int64(cfg.Index.MaxFileCount), cfg.Index.MaxFileCount > 0, "a positive count"},
		{"index.batch_size", int64(cfg.Index.BatchSize), cfg.Index.BatchSize >= 0, "zero (default) or a positive count"},
		{"index.watch_debounce_ms", int64(cfg.Index.WatchDebounceMs), cfg.Index.WatchDebounceMs >= 0, "zero (default) or a positive delay"},
		{"performance.max_memory_mb", int64(cfg.Performance.MaxMemoryMB),
			cfg.Performance.MaxMemoryMB == 0 || cfg.Performance.MaxMemoryMB >= minMemoryMB, "zero (auto) or at least 100"},
		{"performance.max_goroutines", int64(cfg.Performance.MaxGoroutines), cfg.Performance.MaxGoroutines >= 0, "zero (auto) or a positive count"},
		{"performance.parallel_file_workers", int64(cfg.Performance.ParallelFileWorkers), cfg.Performance.ParallelFileWorkers >= 0, "zero (auto) or a positive count"},
		{"search.max_results", int64(cfg.Search.MaxResults), cfg.Search.MaxResults >= 0, "a non-negative count"},
		{"search.max_context_lines", int64(cfg.Search.MaxContextLines), cfg.Search.MaxContextLines >= 0, "a non-negative count"},
	}
	for _, c := range checks {
		if !c.ok {
			return badField(c.field, fmt.Sprintf("%d", c.got), "want "+c.want)
		}
	}

	// One spare core keeps the machine responsive while indexing.
	autoWorkers := runtime.NumCPU() - 1
	if autoWorkers < 1 {
		autoWorkers = 1
	}
	if cfg.Performance.MaxGoroutines == 0 {
		cfg.Performance.MaxGoroutines = autoWorkers
	}
	if cfg.Performance.ParallelFileWorkers == 0 {
		cfg.Performance.ParallelFileWorkers = autoWorkers
	}
	if cfg.Performance.MaxMemoryMB == 0 {
		cfg.Performance.MaxMemoryMB = 1024
	}
	if cfg.Search.MaxContextLines == 0 {
		cfg.Search.MaxContextLines = 50
	}
	if cfg.Index.PriorityMode == "" {
		cfg.Index.PriorityMode = "recent"
	}

	return nil
}

func badField(field, value, reason string) error {
	return lcierrors.NewConfigError(field, value, fmt.Errorf("%s", reason))
}
