package indexing

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/debug"
	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

// binaryPreCheckSizeThreshold is the file size above which the scanner reads
// the head of the file to sniff for binary content before committing to a
// full read. Smaller files are cheap enough to read outright.
const binaryPreCheckSizeThreshold = 256 * 1024

// binaryPreCheckBytes is how much of the head is sniffed.
const binaryPreCheckBytes = 8192

// FileScanner discovers the files under a project root that are eligible for
// indexing: include/exclude glob filtering, gitignore integration, binary
// detection, and size/count limits. Its output is the []FileInfo fed to
// CodeIndexBuilder.BuildByBatch; the FileWatcher reuses its per-file filter
// so watch mode and full scans agree on what is indexable.
type FileScanner struct {
	config          *config.Config
	gitignoreParser *config.GitignoreParser
}

// NewFileScanner builds a scanner for cfg. The gitignore file at the project
// root is loaded once here when RespectGitignore is set; a missing .gitignore
// is not an error.
func NewFileScanner(cfg *config.Config) *FileScanner {
	fs := &FileScanner{
		config: cfg,
	}

	if cfg.Index.RespectGitignore {
		parser := config.NewGitignoreParser()
		if err := parser.LoadGitignore(cfg.Project.Root); err != nil {
			debug.LogIndexing("scanner: failed to load .gitignore under %s: %v\n", cfg.Project.Root, err)
		} else {
			fs.gitignoreParser = parser
		}
	}

	return fs
}

// Scan walks the project root and returns every file that passes the
// include/exclude policy, capped at Index.MaxFileCount. Walk errors on
// individual entries are skipped so one unreadable directory does not abort
// discovery of the rest of the tree.
func (fs *FileScanner) Scan(ctx context.Context) ([]FileInfo, error) {
	root := fs.config.Project.Root

	var files []FileInfo
	visitedDirs := make(map[string]bool)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if info.IsDir() {
			// Resolve symlinks so a cycle cannot walk forever.
			realPath, rerr := filepath.EvalSymlinks(path)
			if rerr != nil {
				return filepath.SkipDir
			}
			if visitedDirs[realPath] {
				return filepath.SkipDir
			}
			visitedDirs[realPath] = true

			if path != root && fs.ShouldIgnoreDirectory(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if !fs.ShouldProcessFile(path, info) {
			return nil
		}

		files = append(files, FileInfo{
			Path:             path,
			Name:             info.Name(),
			Extension:        filepath.Ext(path),
			LastWriteTimeUtc: info.ModTime().UTC(),
		})

		if fs.config.Index.MaxFileCount > 0 && len(files) >= fs.config.Index.MaxFileCount {
			debug.LogIndexing("scanner: file count limit %d reached, stopping walk\n", fs.config.Index.MaxFileCount)
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		if ctx.Err() != nil {
			return files, err
		}
		return files, lcierrors.NewFileError("walk", root, err)
	}

	debug.LogIndexing("scanner: discovered %d indexable files under %s\n", len(files), root)
	return files, nil
}

// ShouldProcessFile reports whether the regular file at path passes every
// filter: exclude globs, include globs (or the source-extension table when no
// include pattern is configured), gitignore, size limit, binary detection.
func (fs *FileScanner) ShouldProcessFile(path string, info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}

	rel := fs.relativeSlashPath(path)

	for _, pattern := range fs.config.Exclude {
		if matchGlob(pattern, rel) {
			return false
		}
	}

	if !fs.matchesInclude(path, rel) {
		return false
	}

	if fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, false) {
		return false
	}

	if fs.config.Index.MaxFileSize > 0 && info.Size() > fs.config.Index.MaxFileSize {
		return false
	}

	if hasBinaryExtension(path) {
		return false
	}
	if info.Size() > binaryPreCheckSizeThreshold && fs.preCheckBinaryFile(path) {
		return false
	}

	return true
}

// ShouldIgnoreDirectory reports whether an entire directory subtree can be
// skipped: exclude globs matching the directory itself, or gitignore.
func (fs *FileScanner) ShouldIgnoreDirectory(path string) bool {
	rel := fs.relativeSlashPath(path)
	base := filepath.Base(path)

	for _, pattern := range fs.config.Exclude {
		dirPattern := strings.TrimSuffix(pattern, "/**")
		if matchGlob(dirPattern, rel) || matchGlob(dirPattern, base) {
			return true
		}
	}

	if fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, true) {
		return true
	}
	return false
}

func (fs *FileScanner) matchesInclude(path, rel string) bool {
	if len(fs.config.Include) == 0 {
		return SourceFileExtensions[strings.ToLower(filepath.Ext(path))]
	}
	for _, pattern := range fs.config.Include {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func (fs *FileScanner) relativeSlashPath(path string) string {
	rel, err := filepath.Rel(fs.config.Project.Root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// preCheckBinaryFile sniffs the head of a large file so binary blobs are
// rejected without loading them whole. An unreadable file is treated as
// binary and is left out of the scan without an error being reported.
func (fs *FileScanner) preCheckBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, binaryPreCheckBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return true
	}
	return looksBinary(buf[:n])
}

// binaryExtensions lists extensions whose content is never worth
// tokenizing, grouped by what produces them. Everything else gets the
// include/extension filters and, for large files, the content sniff.
var binaryExtensions = buildExtensionSet(
	// compiled artifacts and libraries
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".obj", ".lib",
	".class", ".pyc", ".pyo", ".wasm", ".bin",
	// archives and packages
	".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar", ".jar",
	".war", ".deb", ".rpm", ".dmg", ".iso",
	// images
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
	".tiff", ".tif", ".svg", ".psd",
	// audio and video
	".mp3", ".wav", ".flac", ".ogg", ".m4a",
	".mp4", ".avi", ".mov", ".mkv", ".webm", ".wmv",
	// fonts
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	// documents and data blobs
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".db", ".sqlite", ".sqlite3", ".mdb", ".dat", ".pak",
)

func buildExtensionSet(exts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return set
}

func hasBinaryExtension(path string) bool {
	_, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// binaryMagic holds leading byte signatures of container formats that can
// slip past the extension filter (extensionless executables, misnamed
// archives).
var binaryMagic = [][]byte{
	{0x7F, 'E', 'L', 'F'},      // ELF
	{'M', 'Z'},                 // PE/DOS
	{0x89, 'P', 'N', 'G'},      // PNG
	{0xFF, 0xD8, 0xFF},         // JPEG
	{'G', 'I', 'F', '8'},       // GIF
	{'P', 'K', 0x03, 0x04},     // zip family
	{0x1F, 0x8B},               // gzip
	{'%', 'P', 'D', 'F'},       // PDF
	{0x00, 'a', 's', 'm'},      // wasm
	{0xCA, 0xFE, 0xBA, 0xBE},   // Java class / universal binary
	{'S', 'Q', 'L', 'i', 't'},  // SQLite
}

// looksBinary reports whether a file head is binary: a known magic
// signature, or any NUL byte, the classic text/binary discriminator.
func looksBinary(head []byte) bool {
	for _, magic := range binaryMagic {
		if bytes.HasPrefix(head, magic) {
			return true
		}
	}
	return bytes.IndexByte(head, 0) >= 0
}

// matchGlob matches a doublestar pattern against a slash-separated relative
// path, falling back to matching the bare name component so patterns like
// "*.min.js" behave the way users expect.
func matchGlob(pattern, rel string) bool {
	if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := doublestar.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
