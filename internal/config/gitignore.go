package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreParser holds the rules of a project's .gitignore and answers
// whether a path should be skipped. Matching follows git's semantics:
// rules apply in file order and the last matching rule wins, a leading
// "!" re-includes, a trailing "/" restricts the rule to directories, and
// a slash anywhere else anchors the rule to the project root. A rule that
// ignores a directory ignores everything beneath it.
type GitignoreParser struct {
	rules []gitignoreRule
}

type gitignoreRule struct {
	glob     string
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewGitignoreParser returns an empty parser; every path passes until
// rules are loaded.
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore reads rootPath/.gitignore. A missing file leaves the
// parser empty and is not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	f, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		gp.AddPattern(sc.Text())
	}
	return sc.Err()
}

// AddPattern parses one .gitignore line into a rule. Blank lines and
// comments are dropped.
func (gp *GitignoreParser) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var r gitignoreRule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		line = line[1:]
		r.anchored = true
	} else if strings.Contains(line, "/") {
		// A slash anywhere but the end anchors the rule to the root,
		// same as git.
		r.anchored = true
	}
	if line == "" {
		return
	}

	r.glob = line
	gp.rules = append(gp.rules, r)
}

// ShouldIgnore reports whether the slash-separated path, relative to the
// project root, is excluded. isDir lets directory-only rules apply to the
// directory itself and not to a file that happens to share its name.
func (gp *GitignoreParser) ShouldIgnore(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, r := range gp.rules {
		if r.matches(path, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r gitignoreRule) matches(path string, isDir bool) bool {
	glob := r.glob
	if !r.anchored {
		// An unanchored rule matches at any depth.
		glob = "**/" + glob
	}

	if ok, err := doublestar.Match(glob, path); err == nil && ok {
		return isDir || !r.dirOnly
	}
	// The rule names a directory somewhere above path; its whole subtree
	// is covered regardless of dirOnly.
	if ok, err := doublestar.Match(glob+"/**", path); err == nil && ok {
		return true
	}
	return false
}
