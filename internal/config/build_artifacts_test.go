package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMarker(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestDetectBuildArtifactsEmptyProject(t *testing.T) {
	assert.Empty(t, detectBuildArtifacts(t.TempDir()))
}

func TestDetectBuildArtifactsNodeProject(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "package.json", `{
		"name": "demo",
		"dependencies": {"next": "^14.0.0"},
		"devDependencies": {"typescript": "^5.0.0"}
	}`)

	patterns := detectBuildArtifacts(root)
	assert.Contains(t, patterns, "**/dist/**")
	assert.Contains(t, patterns, "**/.next/**")
	assert.Contains(t, patterns, "**/*.tsbuildinfo")
	assert.NotContains(t, patterns, "**/.nuxt/**")
}

func TestDetectBuildArtifactsTsconfigOutDir(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "tsconfig.json", `{"compilerOptions": {"outDir": "./compiled"}}`)

	assert.Contains(t, detectBuildArtifacts(root), "**/compiled/**")
}

func TestDetectBuildArtifactsCargoCustomTargetDir(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "Cargo.toml", "[package]\nname = \"demo\"\n\n[profile.release]\ntarget-dir = \"artifacts\"\n")

	patterns := detectBuildArtifacts(root)
	assert.Contains(t, patterns, "**/target/**")
	assert.Contains(t, patterns, "**/artifacts/**")
}

func TestDetectBuildArtifactsMalformedMarkersIgnored(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "package.json", "{ not json")
	writeMarker(t, root, "tsconfig.json", "also { not json")

	// Fixed patterns still apply; only the refinement is skipped.
	patterns := detectBuildArtifacts(root)
	assert.Contains(t, patterns, "**/dist/**")
	assert.NotContains(t, patterns, "**/*.tsbuildinfo")
}

func TestDirPatternRejectsEscapes(t *testing.T) {
	assert.Equal(t, []string{"**/out/**"}, dirPattern("./out/"))
	assert.Empty(t, dirPattern(""))
	assert.Empty(t, dirPattern("   "))
	assert.Empty(t, dirPattern("../outside"))
}

func TestDedupePatternsKeepsOrder(t *testing.T) {
	got := dedupePatterns([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEnrichExclusionsWithBuildArtifacts(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "pom.xml", "<project/>")

	cfg := &Config{Project: Project{Root: root}, Exclude: []string{"**/target/**"}}
	cfg.EnrichExclusionsWithBuildArtifacts()

	assert.Equal(t, 1, countOf(cfg.Exclude, "**/target/**"), "enrichment never duplicates")
}

func countOf(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}
