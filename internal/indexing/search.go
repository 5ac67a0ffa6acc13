package indexing

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchResult is one code-index hit projected back to its source file.
type SearchResult struct {
	Path             string
	FileName         string
	FileExtension    string
	LastWriteTimeUtc string
}

// SearchContent runs a full-text query against file content. The query text
// goes through the same code analyzer that tokenized the content at ingest,
// and whitespace between terms means AND: every term must appear in the
// file. A fresh query object is built per call; nothing here is shared
// across goroutines.
func (b *CodeIndexBuilder) SearchContent(text string, maxHits int) ([]SearchResult, error) {
	q := bleve.NewMatchQuery(text)
	q.SetField(FieldContent)
	q.SetOperator(query.MatchQueryOperatorAnd)
	return b.searchCode(q, maxHits)
}

// SearchFileName finds files whose name contains the given token, e.g.
// "File" matching "Dummy File 1". '.' is a code symbol, so "parser.go" is a
// single token and matches only as "parser.go", not as "parser".
func (b *CodeIndexBuilder) SearchFileName(token string, maxHits int) ([]SearchResult, error) {
	return b.searchCode(termQuery(Term{Field: FieldFileName, Value: token}), maxHits)
}

// SearchExtension finds files by exact extension (".go", ".cs", ...).
func (b *CodeIndexBuilder) SearchExtension(ext string, maxHits int) ([]SearchResult, error) {
	return b.searchCode(termQuery(Term{Field: FieldFileExtUntok, Value: ext}), maxHits)
}

func (b *CodeIndexBuilder) searchCode(q query.Query, maxHits int) ([]SearchResult, error) {
	hits, err := b.code.Search(q, maxHits)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		src := b.mapper.FromFields(h.Fields)
		out = append(out, SearchResult{
			Path:             src.FilePath,
			FileName:         src.FileName,
			FileExtension:    src.FileExtension,
			LastWriteTimeUtc: formatTicks(src.LastWriteTimeUtc),
		})
	}
	return out, nil
}

// SearchHints returns up to maxHits hint words beginning with prefix,
// matched case-insensitively against the lower-cased view and returned in
// their original case, sorted for stable typeahead display.
func (b *CodeIndexBuilder) SearchHints(prefix string, maxHits int) ([]string, error) {
	hits, err := b.hint.SearchPrefix(FieldWordLowerUntok, strings.ToLower(prefix), maxHits)
	if err != nil {
		return nil, err
	}

	words := make([]string, 0, len(hits))
	for _, h := range hits {
		if w := stringField(h.Fields, FieldWord); w != "" {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	return words, nil
}

// CodeDocCount and HintDocCount expose the pools' sizes for status display.
func (b *CodeIndexBuilder) CodeDocCount() (uint64, error) { return b.code.Count() }

// HintDocCount returns the number of distinct hint words indexed.
func (b *CodeIndexBuilder) HintDocCount() (uint64, error) { return b.hint.Count() }
