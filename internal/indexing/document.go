package indexing

import (
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// UntokenizedSuffix is appended to the indexed name of every untokenized
// companion field: stored verbatim, searchable only by exact term or prefix.
const UntokenizedSuffix = "$$_"

// Field names for the code index. They equal the semantic attribute names of
// CodeSource; the "$$_"-suffixed constants are the untokenized twins used for
// term/prefix queries.
const (
	FieldCodePK           = "CodePK"
	FieldFileName         = "FileName"
	FieldFileNameUntok    = FieldFileName + UntokenizedSuffix
	FieldFileExtension    = "FileExtension"
	FieldFileExtUntok     = FieldFileExtension + UntokenizedSuffix
	FieldFilePath         = "FilePath"
	FieldFilePathUntok    = FieldFilePath + UntokenizedSuffix
	FieldContent          = "Content"
	FieldIndexDate        = "IndexDate"
	FieldLastWriteTimeUtc = "LastWriteTimeUtc"
	FieldInfo             = "Info"
	FieldInfoUntok        = FieldInfo + UntokenizedSuffix
)

// Field names for the hint index. CodeWord.Word is the case-sensitive
// uniqueness key; WordLower backs case-insensitive typeahead.
const (
	FieldWord           = "Word"
	FieldWordUntok      = FieldWord + UntokenizedSuffix
	FieldWordLower      = "WordLower"
	FieldWordLowerUntok = FieldWordLower + UntokenizedSuffix
)

// CodeSource is one per indexed file. CodePK is assigned once at creation
// and is never reused, even across rename/update.
type CodeSource struct {
	CodePK           CodePK
	FileName         string
	FileExtension    string
	FilePath         string
	Content          string
	IndexDate        int64
	LastWriteTimeUtc int64
	Info             string
}

// CodeWord is one per distinct hint word. Uniqueness is keyed on Word
// case-sensitively: "ABC" and "Abc" are distinct documents.
type CodeWord struct {
	Word      string
	WordLower string
}

// Ticks converts t to the tick-precision integer form CodeSource stores its
// timestamps as.
func Ticks(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// TimeFromTicks converts a CodeSource tick value back to a UTC time; the
// stored string form is parsed to ticks by parseTicks.
func TimeFromTicks(ticks int64) time.Time {
	return time.Unix(0, ticks).UTC()
}

func formatTicks(ticks int64) string {
	return strconv.FormatInt(ticks, 10)
}

func parseTicks(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// codeDocument is the shape actually handed to the bleve index: every
// non-content string field emitted twice (tokenized property, untokenized
// companion with the literal property name the mapping expects), CodePK
// untokenized only, Content tokenized-and-stored only, timestamps stored as
// their integer-tick string form.
// Struct field names here are the bleve "property" names used by
// AddFieldMappingsAt below; the indexed field name actually searched on
// ($$_-suffixed or not) is set independently via FieldMapping.Name.
type codeDocument struct {
	CodePK             string
	FileName           string
	FileNameUntok      string
	FileExtension      string
	FileExtensionUntok string
	FilePath           string
	FilePathUntok      string
	Content            string
	IndexDate          string
	LastWriteTimeUtc   string
	Info               string
	InfoUntok          string
}

type hintDocument struct {
	Word           string
	WordUntok      string
	WordLower      string
	WordLowerUntok string
}

// DocumentMapper maps a CodeSource to the field set stored in the code index
// and back. CodePK is generated here when absent on input.
type DocumentMapper struct{}

// NewDocumentMapper constructs a mapper. It carries no state; callers may
// share a single instance across goroutines.
func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

// ToDocument renders src as the field set indexed in the code pool,
// assigning a CodePK if src does not already carry one.
func (m *DocumentMapper) ToDocument(src *CodeSource) (*codeDocument, CodePK) {
	pk := src.CodePK
	if pk == "" {
		pk = NewCodePK()
	}

	return &codeDocument{
		CodePK:             pk.String(),
		FileName:           src.FileName,
		FileNameUntok:      src.FileName,
		FileExtension:      src.FileExtension,
		FileExtensionUntok: src.FileExtension,
		FilePath:           src.FilePath,
		FilePathUntok:      src.FilePath,
		Content:            src.Content,
		IndexDate:          formatTicks(src.IndexDate),
		LastWriteTimeUtc:   formatTicks(src.LastWriteTimeUtc),
		Info:               src.Info,
		InfoUntok:          src.Info,
	}, pk
}

// FromFields reconstructs a CodeSource from a bleve hit's stored field map
// (as returned by SearchResult.Hits[i].Fields when the request asked for
// every field).
func (m *DocumentMapper) FromFields(fields map[string]interface{}) *CodeSource {
	src := &CodeSource{
		CodePK:        CodePK(stringField(fields, FieldCodePK)),
		FileName:      stringField(fields, FieldFileName),
		FileExtension: stringField(fields, FieldFileExtension),
		FilePath:      stringField(fields, FieldFilePath),
		Content:       stringField(fields, FieldContent),
		Info:          stringField(fields, FieldInfo),
	}
	if v, err := parseTicks(stringField(fields, FieldIndexDate)); err == nil {
		src.IndexDate = v
	}
	if v, err := parseTicks(stringField(fields, FieldLastWriteTimeUtc)); err == nil {
		src.LastWriteTimeUtc = v
	}
	return src
}

// ToHintDocument renders a hint word as the field set indexed in the hint
// pool. WordLower is always the lower-cased word.
func (m *DocumentMapper) ToHintDocument(word string) *hintDocument {
	lower := toLowerASCIIAware(word)
	return &hintDocument{
		Word:           word,
		WordUntok:      word,
		WordLower:      lower,
		WordLowerUntok: lower,
	}
}

func stringField(fields map[string]interface{}, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// NewCodeIndexMapping builds the bleve index mapping for the code index:
// one document type with the dual tokenized/untokenized fields described in
// the data model.
func NewCodeIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = CodeAnalyzerName

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldCodePK, untokenizedField(FieldCodePK))
	doc.AddFieldMappingsAt("FileNameUntok", untokenizedField(FieldFileNameUntok))
	doc.AddFieldMappingsAt(FieldFileName, tokenizedField(FieldFileName))
	doc.AddFieldMappingsAt("FileExtensionUntok", untokenizedField(FieldFileExtUntok))
	doc.AddFieldMappingsAt(FieldFileExtension, tokenizedField(FieldFileExtension))
	doc.AddFieldMappingsAt("FilePathUntok", untokenizedField(FieldFilePathUntok))
	doc.AddFieldMappingsAt(FieldFilePath, tokenizedField(FieldFilePath))
	doc.AddFieldMappingsAt(FieldContent, tokenizedField(FieldContent))
	doc.AddFieldMappingsAt(FieldIndexDate, untokenizedField(FieldIndexDate))
	doc.AddFieldMappingsAt(FieldLastWriteTimeUtc, untokenizedField(FieldLastWriteTimeUtc))
	doc.AddFieldMappingsAt("InfoUntok", untokenizedField(FieldInfoUntok))
	doc.AddFieldMappingsAt(FieldInfo, tokenizedField(FieldInfo))

	im.DefaultMapping = doc
	return im
}

// NewHintIndexMapping builds the bleve index mapping for the hint index.
func NewHintIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = CodeAnalyzerName

	wordLowerField := tokenizedField(FieldWordLower)
	wordLowerField.Analyzer = CodeAnalyzerLowerName

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt("WordUntok", untokenizedField(FieldWordUntok))
	doc.AddFieldMappingsAt(FieldWord, tokenizedField(FieldWord))
	doc.AddFieldMappingsAt("WordLowerUntok", untokenizedField(FieldWordLowerUntok))
	doc.AddFieldMappingsAt(FieldWordLower, wordLowerField)

	im.DefaultMapping = doc
	return im
}

func tokenizedField(name string) *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = CodeAnalyzerName
	f.Name = name
	f.Store = true
	f.Index = true
	f.IncludeInAll = false
	return f
}

func untokenizedField(name string) *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = "keyword"
	f.Name = name
	f.Store = true
	f.Index = true
	f.IncludeInAll = false
	return f
}

// toLowerASCIIAware lower-cases a hint word for the WordLower view. The
// analyzer's lower-case token filter is what provides case-insensitive
// search; this keeps the stored value itself consistent with it.
func toLowerASCIIAware(s string) string {
	return strings.ToLower(s)
}
