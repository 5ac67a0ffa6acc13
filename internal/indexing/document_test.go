package indexing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/encoding"
)

func TestToDocumentEmitsDualFields(t *testing.T) {
	mapper := NewDocumentMapper()
	now := Ticks(time.Now())

	doc, pk := mapper.ToDocument(&CodeSource{
		FileName:         "main.go",
		FileExtension:    ".go",
		FilePath:         "/proj/main.go",
		Content:          "package main",
		IndexDate:        now,
		LastWriteTimeUtc: now,
		Info:             "meta",
	})

	assert.NotEmpty(t, pk)
	assert.Equal(t, pk.String(), doc.CodePK)

	// Every non-content string field appears twice: tokenized and as its
	// verbatim untokenized twin.
	assert.Equal(t, "main.go", doc.FileName)
	assert.Equal(t, "main.go", doc.FileNameUntok)
	assert.Equal(t, ".go", doc.FileExtension)
	assert.Equal(t, ".go", doc.FileExtensionUntok)
	assert.Equal(t, "/proj/main.go", doc.FilePath)
	assert.Equal(t, "/proj/main.go", doc.FilePathUntok)
	assert.Equal(t, "meta", doc.Info)
	assert.Equal(t, "meta", doc.InfoUntok)
	assert.Equal(t, "package main", doc.Content)
	assert.Equal(t, formatTicks(now), doc.IndexDate)
}

func TestToDocumentGeneratesPKOnlyWhenAbsent(t *testing.T) {
	mapper := NewDocumentMapper()

	_, generated := mapper.ToDocument(&CodeSource{FilePath: "/a"})
	assert.NotEmpty(t, generated)

	doc, kept := mapper.ToDocument(&CodeSource{CodePK: "existing-pk", FilePath: "/a"})
	assert.Equal(t, CodePK("existing-pk"), kept)
	assert.Equal(t, "existing-pk", doc.CodePK)
}

func TestFromFieldsRoundTrip(t *testing.T) {
	mapper := NewDocumentMapper()
	now := Ticks(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	src := &CodeSource{
		CodePK:           "pk-1",
		FileName:         "x.cs",
		FileExtension:    ".cs",
		FilePath:         "/p/x.cs",
		Content:          "class X { }",
		IndexDate:        now,
		LastWriteTimeUtc: now,
		Info:             "i",
	}
	doc, _ := mapper.ToDocument(src)

	fields := map[string]interface{}{
		FieldCodePK:           doc.CodePK,
		FieldFileName:         doc.FileName,
		FieldFileExtension:    doc.FileExtension,
		FieldFilePath:         doc.FilePath,
		FieldContent:          doc.Content,
		FieldIndexDate:        doc.IndexDate,
		FieldLastWriteTimeUtc: doc.LastWriteTimeUtc,
		FieldInfo:             doc.Info,
	}

	back := mapper.FromFields(fields)
	assert.Equal(t, src, back)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), TimeFromTicks(back.LastWriteTimeUtc))
}

func TestToHintDocument(t *testing.T) {
	mapper := NewDocumentMapper()
	doc := mapper.ToHintDocument("FooBar")

	assert.Equal(t, "FooBar", doc.Word)
	assert.Equal(t, "FooBar", doc.WordUntok)
	assert.Equal(t, "foobar", doc.WordLower)
	assert.Equal(t, "foobar", doc.WordLowerUntok)
}

func TestTicksRoundTrip(t *testing.T) {
	at := time.Date(2024, 11, 3, 9, 30, 15, 123456789, time.UTC)
	ticks := Ticks(at)

	parsed, err := parseTicks(formatTicks(ticks))
	require.NoError(t, err)
	assert.Equal(t, at, TimeFromTicks(parsed))
}

func TestNewCodePKUniqueAndWellFormed(t *testing.T) {
	seen := make(map[CodePK]bool)
	for i := 0; i < 1000; i++ {
		pk := NewCodePK()
		require.False(t, seen[pk], "CodePK collision: %s", pk)
		seen[pk] = true

		parts := strings.SplitN(pk.String(), "-", 2)
		require.Len(t, parts, 2)
		assert.True(t, encoding.Base63IsValid(parts[0]))
		assert.True(t, encoding.Base63IsValid(parts[1]))
	}
}
