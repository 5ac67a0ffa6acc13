package indexing

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lci/internal/debug"
	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

// DefaultBatchSize is the number of staged documents a BuildByBatch flush
// waits for before writing to disk.
const DefaultBatchSize = 10000

// FileInfo is the minimal description of one on-disk file the builder needs
// to read and index it.
type FileInfo struct {
	Path             string
	Name             string
	Extension        string
	LastWriteTimeUtc time.Time
}

// NewFileInfo stats path and fills in the fields CodeIndexBuilder needs.
func NewFileInfo(path string) (FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, lcierrors.NewFileError("stat", path, err)
	}
	return FileInfo{
		Path:             path,
		Name:             filepath.Base(path),
		Extension:        filepath.Ext(path),
		LastWriteTimeUtc: stat.ModTime().UTC(),
	}, nil
}

// FailedFile records one file BuildByBatch could not index.
type FailedFile struct {
	Path string
	Err  error
}

// IndexedFile is one row of GetAllIndexed's result.
type IndexedFile struct {
	Path             string
	LastWriteTimeUtc time.Time
}

// Logger is the three-level logging surface the builder writes to. The
// default implementation routes through internal/debug the same way the
// rest of the tree does.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type debugLogger struct{ component string }

func (l debugLogger) Info(format string, args ...interface{}) {
	debug.Log(l.component, "INFO "+format+"\n", args...)
}

func (l debugLogger) Warn(format string, args ...interface{}) {
	debug.Log(l.component, "WARN "+format+"\n", args...)
}

func (l debugLogger) Error(format string, args ...interface{}) {
	debug.Log(l.component, "ERROR "+format+"\n", args...)
}

// CodeIndexBuilder is the sole orchestrator of the code and hint pools. It
// is the only component aware of their coupling: every mutation that
// touches file content goes through here so the two indexes stay
// eventually consistent with each other.
type CodeIndexBuilder struct {
	Name string

	code      *IndexPool
	hint      *IndexPool
	mapper    *DocumentMapper
	segmenter *WordSegmenter
	logger    Logger
}

// NewCodeIndexBuilder opens (or creates) the code index at codeDir and the
// hint index at hintDir and wires a builder around them.
func NewCodeIndexBuilder(name, codeDir, hintDir string) (*CodeIndexBuilder, error) {
	code, err := NewIndexPool(codeDir, NewCodeIndexMapping())
	if err != nil {
		return nil, err
	}
	hint, err := NewIndexPool(hintDir, NewHintIndexMapping())
	if err != nil {
		_ = code.Close()
		return nil, err
	}

	b := &CodeIndexBuilder{
		Name:      name,
		code:      code,
		hint:      hint,
		mapper:    NewDocumentMapper(),
		segmenter: NewWordSegmenter(),
		logger:    debugLogger{component: name},
	}
	b.logger.Info("opened code index %s and hint index %s", codeDir, hintDir)
	return b, nil
}

// Close disposes both pools. Idempotent (IndexPool.Close is).
func (b *CodeIndexBuilder) Close() error {
	errCode := b.code.Close()
	errHint := b.hint.Close()
	if errCode != nil {
		return errCode
	}
	return errHint
}

// batchState holds the staging dictionaries BuildByBatch accumulates into
// before a flush. stagingLock is the staging discipline: workers appending
// to these slices/maps take the shared side, the flush that drains them
// takes the exclusive side.
type batchState struct {
	stagingLock sync.RWMutex

	mu        sync.Mutex
	docs      []BuildDoc
	hintDocs  []BuildDoc
	seenWords map[string]struct{}
	failed    []FailedFile
}

// BuildByBatch ingests files in parallel across a worker pool, extracting
// hint words with a batch-scoped dedup dictionary, and flushes staged
// documents to both pools every batchSize files (and once more at the end
// for any remainder). A file that fails to read or map is recorded in the
// returned failures slice; processing continues. Cancellation is checked
// before each file and before each flush, and re-propagates as an error
// rather than being folded into the failures slice.
func (b *CodeIndexBuilder) BuildByBatch(ctx context.Context, files []FileInfo, commit, triggerMerge, applyDeletes bool, batchSize int) ([]FailedFile, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	state := &batchState{seenWords: make(map[string]struct{})}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit())

	for _, fi := range files {
		fi := fi
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			src, words, err := b.readAndMap(fi)
			if err != nil {
				state.mu.Lock()
				state.failed = append(state.failed, FailedFile{Path: fi.Path, Err: err})
				state.mu.Unlock()
				b.logger.Warn("batch: failed to read %s: %v", fi.Path, err)
				return nil
			}

			doc, pk := b.mapper.ToDocument(src)

			state.stagingLock.RLock()
			shouldFlush := b.stage(state, doc, string(pk), words, batchSize)
			state.stagingLock.RUnlock()

			if shouldFlush {
				if err := gctx.Err(); err != nil {
					return err
				}
				return b.flush(state, commit, triggerMerge, applyDeletes)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return state.failed, err
	}

	if err := ctx.Err(); err != nil {
		return state.failed, err
	}
	if err := b.flush(state, commit, triggerMerge, applyDeletes); err != nil {
		return state.failed, err
	}

	return state.failed, nil
}

func (b *CodeIndexBuilder) stage(state *batchState, doc *codeDocument, pk string, words []string, batchSize int) bool {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.docs = append(state.docs, BuildDoc{ID: pk, Fields: doc})
	for _, w := range words {
		if _, seen := state.seenWords[w]; seen {
			continue
		}
		state.seenWords[w] = struct{}{}
		state.hintDocs = append(state.hintDocs, BuildDoc{ID: w, Fields: b.mapper.ToHintDocument(w)})
	}
	return len(state.docs) >= batchSize
}

// flush drains whatever is currently staged and writes it to both pools. It
// takes the exclusive side of stagingLock so no worker can append to the
// slices it is about to swap out from under them.
func (b *CodeIndexBuilder) flush(state *batchState, commit, triggerMerge, applyDeletes bool) error {
	state.stagingLock.Lock()
	defer state.stagingLock.Unlock()

	state.mu.Lock()
	docs := state.docs
	hintDocs := state.hintDocs
	state.docs = nil
	state.hintDocs = nil
	state.seenWords = make(map[string]struct{})
	state.mu.Unlock()

	if len(docs) == 0 && len(hintDocs) == 0 {
		return nil
	}

	if err := b.code.Build(docs, commit, triggerMerge, applyDeletes); err != nil {
		return err
	}

	for _, hd := range hintDocs {
		word := hd.ID
		if err := b.hint.Update(Term{Field: FieldWordUntok, Value: word}, word, hd.Fields); err != nil {
			return err
		}
	}
	if commit || triggerMerge || applyDeletes {
		if err := b.hint.Commit(); err != nil {
			return err
		}
	}

	b.logger.Info("batch: flushed %d code docs, %d hint words", len(docs), len(hintDocs))
	return nil
}

func (b *CodeIndexBuilder) readAndMap(fi FileInfo) (*CodeSource, []string, error) {
	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return nil, nil, lcierrors.NewFileError("read", fi.Path, err)
	}

	src := &CodeSource{
		FileName:         fi.Name,
		FileExtension:    fi.Extension,
		FilePath:         fi.Path,
		Content:          string(content),
		IndexDate:        Ticks(time.Now()),
		LastWriteTimeUtc: Ticks(fi.LastWriteTimeUtc),
	}
	words := dedupeWords(b.segmenter.Segment(src.Content))
	return src, words, nil
}

// Create indexes a single new file: no dedup against other files, writes
// the code document without committing, and upserts each hint word.
func (b *CodeIndexBuilder) Create(fi FileInfo) (lcierrors.OpResult, error) {
	src, words, err := b.readAndMap(fi)
	if err != nil {
		return classifyErr(err), err
	}

	doc, pk := b.mapper.ToDocument(src)
	if err := b.code.Build([]BuildDoc{{ID: doc.CodePK, Fields: doc}}, false, false, false); err != nil {
		return lcierrors.FailedWithIoException, err
	}

	for _, w := range words {
		if err := b.hint.Update(Term{Field: FieldWordUntok, Value: w}, w, b.mapper.ToHintDocument(w)); err != nil {
			return lcierrors.FailedWithError, err
		}
	}

	b.logger.Info("create: indexed %s (pk=%s)", fi.Path, pk)
	return lcierrors.Successful, nil
}

// Update re-indexes a file already known to the code index, or creates it
// if this is the first time it is seen. The document's CodePK is preserved
// across the update. Stale hint words from the previous content are not
// removed; the hint index only shrinks on a full rebuild.
func (b *CodeIndexBuilder) Update(ctx context.Context, fi FileInfo) (lcierrors.OpResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, words, err := b.readAndMap(fi)
	if err != nil {
		return classifyErr(err), err
	}

	if pk, ok, err := b.lookupPK(fi.Path); err != nil {
		return lcierrors.FailedWithError, err
	} else if ok {
		src.CodePK = pk
	}

	doc, pk := b.mapper.ToDocument(src)
	term := Term{Field: FieldFilePathUntok, Value: fi.Path}
	if err := b.code.Update(term, doc.CodePK, doc); err != nil {
		return lcierrors.FailedWithIoException, err
	}

	for _, w := range words {
		if err := b.hint.Update(Term{Field: FieldWordUntok, Value: w}, w, b.mapper.ToHintDocument(w)); err != nil {
			return lcierrors.FailedWithError, err
		}
	}

	b.logger.Info("update: re-indexed %s (pk=%s)", fi.Path, pk)
	return lcierrors.Successful, nil
}

// Delete removes the code document for filePath. Hint words it contributed
// are not pruned; the hint index only shrinks through DeleteAll.
func (b *CodeIndexBuilder) Delete(filePath string) error {
	if err := b.code.DeleteTerm(Term{Field: FieldFilePathUntok, Value: filePath}); err != nil {
		return err
	}
	b.logger.Info("delete: removed %s from the code index", filePath)
	return nil
}

// RenameFile moves the code document for oldPath to newPath in place,
// preserving its CodePK. If no document matches oldPath this falls back to
// Create(newPath) to cover template-rename races where the old path was
// never indexed. More than one match is ambiguous and fails without
// mutating anything.
func (b *CodeIndexBuilder) RenameFile(oldPath, newPath string) (lcierrors.OpResult, error) {
	hits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: oldPath}, 2)
	if err != nil {
		return lcierrors.FailedWithError, err
	}

	switch len(hits) {
	case 0:
		fi, err := NewFileInfo(newPath)
		if err != nil {
			return lcierrors.FailedWithIoException, err
		}
		return b.Create(fi)

	case 1:
		src := b.mapper.FromFields(hits[0].Fields)
		src.CodePK = CodePK(hits[0].ID)
		src.FilePath = strings.Replace(src.FilePath, oldPath, newPath, 1)

		doc, pk := b.mapper.ToDocument(src)
		term := Term{Field: FieldCodePK, Value: string(src.CodePK)}
		if err := b.code.Update(term, doc.CodePK, doc); err != nil {
			return lcierrors.FailedWithIoException, err
		}

		b.logger.Info("rename: %s -> %s (pk=%s)", oldPath, newPath, pk)
		return lcierrors.Successful, nil

	default:
		b.logger.Warn("rename: %q matched %d documents, expected exactly one", oldPath, len(hits))
		return lcierrors.FailedWithError, &lcierrors.AmbiguousRenameError{OldPath: oldPath, Matches: len(hits)}
	}
}

// RenameFolder rewrites every code document whose FilePath starts with
// oldPrefix. The prefix search runs with the pool's MaxHits bound so every
// match is rewritten in one call.
func (b *CodeIndexBuilder) RenameFolder(ctx context.Context, oldPrefix, newPrefix string) error {
	hits, err := b.code.SearchPrefix(FieldFilePathUntok, oldPrefix, MaxHits)
	if err != nil {
		return err
	}

	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return err
		}

		src := b.mapper.FromFields(h.Fields)
		src.CodePK = CodePK(h.ID)
		src.FilePath = strings.Replace(src.FilePath, oldPrefix, newPrefix, 1)

		doc, _ := b.mapper.ToDocument(src)
		term := Term{Field: FieldCodePK, Value: string(src.CodePK)}
		if err := b.code.Update(term, doc.CodePK, doc); err != nil {
			return err
		}
	}

	b.logger.Info("rename folder: %s -> %s (%d files)", oldPrefix, newPrefix, len(hits))
	return nil
}

// GetAllIndexed enumerates every code document and parses its tick fields.
func (b *CodeIndexBuilder) GetAllIndexed() ([]IndexedFile, error) {
	hits, err := b.code.SearchAll(MaxHits)
	if err != nil {
		return nil, err
	}

	out := make([]IndexedFile, 0, len(hits))
	for _, h := range hits {
		src := b.mapper.FromFields(h.Fields)
		out = append(out, IndexedFile{Path: src.FilePath, LastWriteTimeUtc: TimeFromTicks(src.LastWriteTimeUtc)})
	}
	return out, nil
}

// DeleteAll forwards to both pools.
func (b *CodeIndexBuilder) DeleteAll() error {
	if err := b.code.DeleteAll(); err != nil {
		return err
	}
	return b.hint.DeleteAll()
}

// Commit commits both pools.
func (b *CodeIndexBuilder) Commit() error {
	if err := b.code.Commit(); err != nil {
		return err
	}
	return b.hint.Commit()
}

func (b *CodeIndexBuilder) lookupPK(path string) (CodePK, bool, error) {
	hits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: path}, 2)
	if err != nil {
		return "", false, err
	}
	if len(hits) == 0 {
		return "", false, nil
	}
	return CodePK(hits[0].ID), true, nil
}

func classifyErr(err error) lcierrors.OpResult {
	var fe *lcierrors.FileError
	if stderrors.As(err, &fe) {
		return lcierrors.FailedWithIoException
	}
	return lcierrors.FailedWithError
}

func dedupeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func workerLimit() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 4
}

// MaintenanceInterface is the full surface a maintenance client (the CLI,
// a file-system watcher, or an RPC front end) drives a code index through.
// CodeIndexBuilder is its only implementation.
type MaintenanceInterface interface {
	Create(fi FileInfo) (lcierrors.OpResult, error)
	Update(ctx context.Context, fi FileInfo) (lcierrors.OpResult, error)
	Delete(filePath string) error
	RenameFile(oldPath, newPath string) (lcierrors.OpResult, error)
	RenameFolder(ctx context.Context, oldPrefix, newPrefix string) error
	Commit() error
	DeleteAll() error
	GetAllIndexed() ([]IndexedFile, error)
	BuildByBatch(ctx context.Context, files []FileInfo, commit, triggerMerge, applyDeletes bool, batchSize int) ([]FailedFile, error)
}

var _ MaintenanceInterface = (*CodeIndexBuilder)(nil)
