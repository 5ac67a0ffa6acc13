package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

func newTestBuilder(t *testing.T) *CodeIndexBuilder {
	t.Helper()
	dir := t.TempDir()
	b, err := NewCodeIndexBuilder("test", filepath.Join(dir, "CodeIndex"), filepath.Join(dir, "HintIndex"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func writeTestFile(t *testing.T, dir, name, content string) FileInfo {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	fi, err := NewFileInfo(path)
	require.NoError(t, err)
	return fi
}

func TestBuildByBatchIndexesOneDocumentPerFile(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	var files []FileInfo
	for i := 0; i < 5; i++ {
		files = append(files, writeTestFile(t, dir, fmt.Sprintf("file%d.go", i), fmt.Sprintf("package main // file number %d", i)))
	}

	failed, err := b.BuildByBatch(context.Background(), files, true, false, false, 0)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.NoError(t, b.Commit())

	indexed, err := b.GetAllIndexed()
	require.NoError(t, err)
	require.Len(t, indexed, 5)

	paths := map[string]int{}
	for _, f := range indexed {
		paths[f.Path]++
		assert.False(t, f.LastWriteTimeUtc.IsZero())
	}
	for _, fi := range files {
		assert.Equal(t, 1, paths[fi.Path], "exactly one document per file")
	}
}

func TestBuildByBatchSmallBatchSizeFlushesInterior(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	var files []FileInfo
	for i := 0; i < 7; i++ {
		files = append(files, writeTestFile(t, dir, fmt.Sprintf("f%d.go", i), "package batching"))
	}

	failed, err := b.BuildByBatch(context.Background(), files, true, false, false, 2)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.NoError(t, b.Commit())

	count, err := b.CodeDocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 7, count)
}

func TestBuildByBatchRecordsFailedFiles(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	good := writeTestFile(t, dir, "good.go", "package good")
	bad := FileInfo{Path: filepath.Join(dir, "does-not-exist.go"), Name: "does-not-exist.go", Extension: ".go"}

	failed, err := b.BuildByBatch(context.Background(), []FileInfo{good, bad}, true, false, false, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, bad.Path, failed[0].Path)
	assert.Error(t, failed[0].Err)

	require.NoError(t, b.Commit())
	count, err := b.CodeDocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "the good file still gets indexed")
}

func TestBuildByBatchCancellation(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	var files []FileInfo
	for i := 0; i < 20; i++ {
		files = append(files, writeTestFile(t, dir, fmt.Sprintf("f%d.go", i), "package cancelled"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.BuildByBatch(ctx, files, true, false, false, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildByBatchDedupesHintWordsAcrossFiles(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	// "shared" appears in both files but must land in the hint index once.
	files := []FileInfo{
		writeTestFile(t, dir, "one.go", "shared alpha1"),
		writeTestFile(t, dir, "two.go", "shared beta2"),
	}

	_, err := b.BuildByBatch(context.Background(), files, true, false, false, 0)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	hints, err := b.SearchHints("shared", MaxHits)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, hints)
}

func TestCreateThenDeleteLeavesNoDocument(t *testing.T) {
	b := newTestBuilder(t)
	fi := writeTestFile(t, t.TempDir(), "gone.go", "package gone")

	res, err := b.Create(fi)
	require.NoError(t, err)
	assert.Equal(t, lcierrors.Successful, res)

	require.NoError(t, b.Delete(fi.Path))
	require.NoError(t, b.Commit())

	hits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: fi.Path}, MaxHits)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteAfterFileRemovedFromDisk(t *testing.T) {
	b := newTestBuilder(t)
	fi := writeTestFile(t, t.TempDir(), "x.cs", "class X { }")

	_, err := b.Create(fi)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	require.NoError(t, os.Remove(fi.Path))
	require.NoError(t, b.Delete(fi.Path))
	require.NoError(t, b.Commit())

	count, err := b.CodeDocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdatePreservesCodePK(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()
	fi := writeTestFile(t, dir, "stable.go", "package v1")

	_, err := b.Create(fi)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	before, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: fi.Path}, MaxHits)
	require.NoError(t, err)
	require.Len(t, before, 1)

	fi = writeTestFile(t, dir, "stable.go", "package v2 // changed")
	res, err := b.Update(context.Background(), fi)
	require.NoError(t, err)
	assert.Equal(t, lcierrors.Successful, res)
	require.NoError(t, b.Commit())

	after, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: fi.Path}, MaxHits)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID, "CodePK survives update")
	assert.Contains(t, after[0].Fields[FieldContent], "changed")
}

func TestUpdateUnknownPathInserts(t *testing.T) {
	b := newTestBuilder(t)
	fi := writeTestFile(t, t.TempDir(), "fresh.go", "package fresh")

	res, err := b.Update(context.Background(), fi)
	require.NoError(t, err)
	assert.Equal(t, lcierrors.Successful, res)
	require.NoError(t, b.Commit())

	count, err := b.CodeDocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRenameFileMovesDocumentAndKeepsPK(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()
	fi := writeTestFile(t, dir, "old.go", "package renamed")

	_, err := b.Create(fi)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	before, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: fi.Path}, MaxHits)
	require.NoError(t, err)
	require.Len(t, before, 1)

	newPath := filepath.Join(dir, "new.go")
	require.NoError(t, os.Rename(fi.Path, newPath))

	res, err := b.RenameFile(fi.Path, newPath)
	require.NoError(t, err)
	assert.Equal(t, lcierrors.Successful, res)
	require.NoError(t, b.Commit())

	newHits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: newPath}, MaxHits)
	require.NoError(t, err)
	require.Len(t, newHits, 1)
	assert.Equal(t, before[0].ID, newHits[0].ID, "CodePK unchanged by rename")

	oldHits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: fi.Path}, MaxHits)
	require.NoError(t, err)
	assert.Empty(t, oldHits)
}

func TestRenameFileUnknownOldPathFallsBackToCreate(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	// The old path was never indexed (template-rename race): the rename
	// degrades to a create of the new path.
	newFi := writeTestFile(t, dir, "appeared.go", "package appeared")

	res, err := b.RenameFile(filepath.Join(dir, "never-indexed.go"), newFi.Path)
	require.NoError(t, err)
	assert.Equal(t, lcierrors.Successful, res)
	require.NoError(t, b.Commit())

	hits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: newFi.Path}, MaxHits)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRenameFolderRewritesEveryMatch(t *testing.T) {
	b := newTestBuilder(t)
	root := t.TempDir()
	oldDir := filepath.Join(root, "a")
	newDir := filepath.Join(root, "b")

	var files []FileInfo
	for i := 0; i < 3; i++ {
		files = append(files, writeTestFile(t, oldDir, fmt.Sprintf("x%d.cs", i), "class X { }"))
	}
	_, err := b.BuildByBatch(context.Background(), files, true, false, false, 0)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	require.NoError(t, b.RenameFolder(context.Background(), oldDir, newDir))
	require.NoError(t, b.Commit())

	newHits, err := b.code.SearchPrefix(FieldFilePathUntok, newDir, MaxHits)
	require.NoError(t, err)
	assert.Len(t, newHits, 3, "every file under the old prefix is rewritten")

	oldHits, err := b.code.SearchPrefix(FieldFilePathUntok, oldDir, MaxHits)
	require.NoError(t, err)
	assert.Empty(t, oldHits)

	hits, err := b.code.SearchTerm(Term{Field: FieldFilePathUntok, Value: filepath.Join(newDir, "x0.cs")}, MaxHits)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestHintWordsAreCaseSensitiveDistinct(t *testing.T) {
	b := newTestBuilder(t)
	fi := writeTestFile(t, t.TempDir(), "case.go", "Hello HELLO hello Hello")

	_, err := b.Create(fi)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	hints, err := b.SearchHints("hello", MaxHits)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Hello", "HELLO", "hello"}, hints)

	count, err := b.HintDocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestDeleteAllClearsBothPools(t *testing.T) {
	b := newTestBuilder(t)
	fi := writeTestFile(t, t.TempDir(), "all.go", "package everything indexed")

	_, err := b.Create(fi)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	require.NoError(t, b.DeleteAll())
	require.NoError(t, b.Commit())

	codeCount, err := b.CodeDocCount()
	require.NoError(t, err)
	hintCount, err := b.HintDocCount()
	require.NoError(t, err)
	assert.Zero(t, codeCount)
	assert.Zero(t, hintCount)
}

func TestSearchContentIsANDAcrossTerms(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	both := writeTestFile(t, dir, "both.go", "alpha beta gamma")
	_ = writeTestFile(t, dir, "one.go", "alpha delta")

	files := []FileInfo{both, {Path: filepath.Join(dir, "one.go"), Name: "one.go", Extension: ".go"}}
	fi2, err := NewFileInfo(files[1].Path)
	require.NoError(t, err)
	files[1] = fi2

	_, err = b.BuildByBatch(context.Background(), files, true, false, false, 0)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	results, err := b.SearchContent("alpha beta", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "both terms must match")
	assert.Equal(t, both.Path, results[0].Path)

	results, err = b.SearchContent("alpha", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchExtensionAndFileName(t *testing.T) {
	b := newTestBuilder(t)
	dir := t.TempDir()

	files := []FileInfo{
		writeTestFile(t, dir, "parser.go", "package parser"),
		writeTestFile(t, dir, "lexer.cs", "class Lexer { }"),
	}
	_, err := b.BuildByBatch(context.Background(), files, true, false, false, 0)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	byExt, err := b.SearchExtension(".cs", 10)
	require.NoError(t, err)
	require.Len(t, byExt, 1)
	assert.Equal(t, "lexer.cs", byExt[0].FileName)

	byName, err := b.SearchFileName("parser.go", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "parser.go", byName[0].FileName)
}
