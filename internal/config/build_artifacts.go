package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// artifactProbe ties a build-system marker file at the project root to the
// output directories that build system writes, so generated trees never
// reach the index. fixed patterns apply whenever the marker exists; refine,
// when set, reads the marker for project-specific output locations.
type artifactProbe struct {
	marker string
	fixed  []string
	refine func(markerPath string) []string
}

var artifactProbes = []artifactProbe{
	{
		marker: "package.json",
		fixed:  []string{"**/dist/**", "**/coverage/**"},
		refine: nodeOutputs,
	},
	{
		marker: "tsconfig.json",
		refine: tsconfigOutputs,
	},
	{
		marker: "Cargo.toml",
		fixed:  []string{"**/target/**"},
		refine: cargoOutputs,
	},
	{
		marker: "pyproject.toml",
		fixed:  []string{"**/__pycache__/**", "**/.venv/**", "**/dist/**", "**/*.egg-info/**"},
	},
	{
		marker: "setup.py",
		fixed:  []string{"**/__pycache__/**", "**/dist/**", "**/*.egg-info/**"},
	},
	{
		marker: "pom.xml",
		fixed:  []string{"**/target/**"},
	},
	{
		marker: "build.gradle",
		fixed:  []string{"**/build/**", "**/.gradle/**"},
	},
}

// detectBuildArtifacts returns exclusion globs for every build system whose
// marker file exists at root.
func detectBuildArtifacts(root string) []string {
	var patterns []string
	for _, probe := range artifactProbes {
		markerPath := filepath.Join(root, probe.marker)
		if _, err := os.Stat(markerPath); err != nil {
			continue
		}
		patterns = append(patterns, probe.fixed...)
		if probe.refine != nil {
			patterns = append(patterns, probe.refine(markerPath)...)
		}
	}
	return patterns
}

// nodeOutputs infers framework-specific output directories from the
// dependency lists in package.json.
func nodeOutputs(markerPath string) []string {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if raw, err := os.ReadFile(markerPath); err != nil || json.Unmarshal(raw, &pkg) != nil {
		return nil
	}

	depends := func(name string) bool {
		if _, ok := pkg.Dependencies[name]; ok {
			return true
		}
		_, ok := pkg.DevDependencies[name]
		return ok
	}

	var out []string
	if depends("typescript") {
		out = append(out, "**/*.tsbuildinfo")
	}
	if depends("next") {
		out = append(out, "**/.next/**")
	}
	if depends("nuxt") {
		out = append(out, "**/.nuxt/**")
	}
	if depends("react-scripts") || depends("webpack") {
		out = append(out, "**/build/**")
	}
	return out
}

// tsconfigOutputs reads compilerOptions.outDir so compiled TypeScript never
// shadows its sources in search results.
func tsconfigOutputs(markerPath string) []string {
	var tsconfig struct {
		CompilerOptions struct {
			OutDir string `json:"outDir"`
		} `json:"compilerOptions"`
	}
	if raw, err := os.ReadFile(markerPath); err != nil || json.Unmarshal(raw, &tsconfig) != nil {
		return nil
	}
	return dirPattern(tsconfig.CompilerOptions.OutDir)
}

// cargoOutputs reads a custom target-dir from Cargo.toml's release profile;
// the default target/ is covered by the fixed patterns.
func cargoOutputs(markerPath string) []string {
	var manifest struct {
		Profile struct {
			Release struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"release"`
		} `toml:"profile"`
	}
	if raw, err := os.ReadFile(markerPath); err != nil || toml.Unmarshal(raw, &manifest) != nil {
		return nil
	}
	return dirPattern(manifest.Profile.Release.TargetDir)
}

// dirPattern turns a configured output directory into an exclusion glob,
// or nothing when the directory is unset or escapes the project.
func dirPattern(dir string) []string {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	dir = strings.TrimPrefix(dir, "./")
	if dir == "" || strings.HasPrefix(dir, "..") {
		return nil
	}
	return []string{"**/" + dir + "/**"}
}

// dedupePatterns drops repeated globs while keeping first-seen order.
func dedupePatterns(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
