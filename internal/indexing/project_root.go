package indexing

import (
	"os"
	"path/filepath"
)

// FindProjectRoot walks upward from start looking for the directory that
// most plausibly roots the project, so `lci` can be run from anywhere inside
// a tree without a --root flag. Marker priority: an explicit LCI config
// file wins outright; otherwise the deepest directory carrying a primary
// marker, then a secondary marker, then one holding at least
// SourceDirectoryThreshold conventional source directories. Falls back to
// start when nothing matches.
func FindProjectRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start
	}

	var primary, secondary, sourcey string

	for d := dir; ; {
		if hasAnyMarker(d, LCIConfigMarkers) {
			return d
		}
		if primary == "" && hasAnyMarker(d, PrimaryProjectMarkers) {
			primary = d
		}
		if secondary == "" && hasAnyMarker(d, SecondaryProjectMarkers) {
			secondary = d
		}
		if sourcey == "" && countSourceDirs(d) >= SourceDirectoryThreshold {
			sourcey = d
		}

		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}

	switch {
	case primary != "":
		return primary
	case secondary != "":
		return secondary
	case sourcey != "":
		return sourcey
	}
	return dir
}

func hasAnyMarker(dir string, markers []string) bool {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

func countSourceDirs(dir string) int {
	n := 0
	for _, name := range SourceDirectoryNames {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			n++
		}
	}
	return n
}
