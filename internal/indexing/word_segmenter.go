package indexing

// MinHintWordLength and MaxHintWordLength bound the hint words WordSegmenter
// emits: strictly greater than MinHintWordLength and strictly less than
// MaxHintWordLength.
const (
	MinHintWordLength = 3
	MaxHintWordLength = 200
)

// WordSegmenter extracts candidate hint words from file content for the hint
// index, reusing CodeAnalyzer's splitting rules. It is case-preserving;
// deduplication across files is the builder's job, not the segmenter's.
type WordSegmenter struct{}

// NewWordSegmenter constructs a segmenter. It carries no state.
func NewWordSegmenter() *WordSegmenter {
	return &WordSegmenter{}
}

// Segment returns every token from content whose length strictly satisfies
// MinHintWordLength < len < MaxHintWordLength, in original case and in the
// order encountered.
func (s *WordSegmenter) Segment(content string) []string {
	tokens := Tokenize(content)
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		n := len(tok.Text)
		if n > MinHintWordLength && n < MaxHintWordLength {
			words = append(words, tok.Text)
		}
	}
	return words
}
