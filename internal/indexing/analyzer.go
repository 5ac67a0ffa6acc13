package indexing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/registry"
)

// CodeAnalyzerName and CodeAnalyzerLowerName are the bleve registry names for
// the two views of the same tokenizer: case-preserving (used for Content and
// for every tokenized field) and lower-cased (used for CodeWord.WordLower).
const (
	CodeAnalyzerName      = "lci_code"
	CodeAnalyzerLowerName = "lci_code_lower"
	codeTokenizerName     = "lci_code_tokenizer"
)

// codeSymbolChars is the fixed set of punctuation treated as part of the
// "code symbol" character class: semantically meaningful in source text and
// therefore kept inside tokens rather than split on.
const codeSymbolChars = `_.@#$&+-*/\<>=!?:;,()[]{}|~^"'`

func init() {
	registry.RegisterTokenizer(codeTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return NewCodeTokenizer(), nil
	})

	registry.RegisterAnalyzer(CodeAnalyzerName, func(map[string]interface{}, *registry.Cache) (analysis.Analyzer, error) {
		return &analysis.DefaultAnalyzer{Tokenizer: NewCodeTokenizer()}, nil
	})

	registry.RegisterAnalyzer(CodeAnalyzerLowerName, func(config map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
		lowerFilter, err := cache.TokenFilterNamed(lowercase.Name)
		if err != nil {
			return nil, err
		}
		return &analysis.DefaultAnalyzer{
			Tokenizer:    NewCodeTokenizer(),
			TokenFilters: []analysis.TokenFilter{lowerFilter},
		}, nil
	})
}

// Token is one maximal run of code-class characters emitted by Tokenize,
// with its byte offsets into the original input preserved for analyzers that
// need them.
type Token struct {
	Text  string
	Start int
	End   int
}

// isCodeRune reports whether r belongs to the "code symbol" class: a letter,
// a digit, or one of the fixed punctuation characters that carries meaning
// in source text (identifiers, operators, path separators).
func isCodeRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune(codeSymbolChars, r)
}

// Tokenize is the single splitting rule shared by ingest tokenization, query
// parsing, and hint-word extraction: a maximal run of code-class characters
// is one token, everything else is a delimiter and is discarded. Case is
// preserved; there is no stemming and no stop-word removal.
func Tokenize(content string) []Token {
	var tokens []Token
	tokenStart := -1

	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])
		if isCodeRune(r) {
			if tokenStart == -1 {
				tokenStart = i
			}
		} else if tokenStart != -1 {
			tokens = append(tokens, Token{Text: content[tokenStart:i], Start: tokenStart, End: i})
			tokenStart = -1
		}
		i += size
	}
	if tokenStart != -1 {
		tokens = append(tokens, Token{Text: content[tokenStart:], Start: tokenStart, End: len(content)})
	}
	return tokens
}

// CodeTokenizer adapts Tokenize to bleve's analysis.Tokenizer contract so
// the exact same splitting rule backs both the indexed Content field and any
// query string run against it.
type CodeTokenizer struct{}

// NewCodeTokenizer returns a fresh tokenizer. Tokenizers carry no state, but
// a fresh instance is produced per analyzer build so none is ever shared
// across goroutines in a way that would matter if that changed.
func NewCodeTokenizer() *CodeTokenizer {
	return &CodeTokenizer{}
}

func (t *CodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	tokens := Tokenize(string(input))
	stream := make(analysis.TokenStream, 0, len(tokens))
	for i, tok := range tokens {
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok.Text),
			Start:    tok.Start,
			End:      tok.End,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
