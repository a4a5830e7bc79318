package chunking

import (
	"bytes"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/poiesic/mailrag/core"
)

const (
	// DefaultMaxWords is the word budget of a single chunk.
	DefaultMaxWords = 512

	// DefaultOverlap is the configured overlap; see SeedSentences.
	DefaultOverlap = 100

	// DefaultMinSentenceWords drops sentences shorter than this.
	DefaultMinSentenceWords = 3
)

var (
	// ErrInvalidMaxWords is returned when the word budget is below one.
	ErrInvalidMaxWords = errors.New("max words must be greater than 0")

	// ErrInvalidOverlap is returned for a negative overlap.
	ErrInvalidOverlap = errors.New("overlap cannot be negative")
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// DefaultFillerPhrases are sentences that carry no retrievable information.
// They are matched against the whole sentence, case-insensitively, ignoring
// surrounding punctuation.
var DefaultFillerPhrases = []string{
	`thanks( so much| again)?( in advance)?`,
	`thank you( so much| again)?( in advance)?`,
	`hope (this|that) helps`,
	`hope (you are|you're|all is|everything is) (well|good|doing well)`,
	`hope you (had|have) a (great|good|nice) (day|week|weekend)`,
	`let me know if you have any (other |further )?questions`,
	`(please )?let me know( what you think| your thoughts| if (that|this) works)?`,
	`(please )?feel free to reach out( with any questions)?`,
	`looking forward to (hearing from you|your reply|your response)`,
	`talk (soon|later)`,
	`see you (soon|then|tomorrow)`,
	`have a (great|good|nice) (day|week|weekend)`,
	`sounds good`,
	`no worries`,
}

// Chunker splits text into chunks. It is safe for concurrent use.
type Chunker struct {
	maxWords         int
	overlap          int
	minSentenceWords int
	signatureLines   int
	fillers          []*regexp.Regexp
	logger           *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithMaxWords sets the word budget per chunk. Default is 512.
func WithMaxWords(n int) Option {
	return func(c *Chunker) error {
		if n < 1 {
			return ErrInvalidMaxWords
		}
		c.maxWords = n
		return nil
	}
}

// WithOverlap sets the overlap. Zero disables overlap. Default is 100.
func WithOverlap(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return ErrInvalidOverlap
		}
		c.overlap = n
		return nil
	}
}

// WithMinSentenceWords sets the minimum length of a kept sentence.
// Values below one disable the short-sentence filter.
func WithMinSentenceWords(n int) Option {
	return func(c *Chunker) error {
		c.minSentenceWords = n
		return nil
	}
}

// WithSignatureLines sets how many trailing lines are searched for a sign-off.
func WithSignatureLines(n int) Option {
	return func(c *Chunker) error {
		c.signatureLines = n
		return nil
	}
}

// WithFillerPhrases replaces the filler phrase patterns.
// Each pattern is a regular expression matched against a whole sentence.
func WithFillerPhrases(patterns ...string) Option {
	return func(c *Chunker) error {
		fillers, err := compileFillers(patterns)
		if err != nil {
			return err
		}
		c.fillers = fillers
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Chunker with defaults overridden by opts.
func New(opts ...Option) (*Chunker, error) {
	fillers, err := compileFillers(DefaultFillerPhrases)
	if err != nil {
		return nil, err
	}
	c := &Chunker{
		maxWords:         DefaultMaxWords,
		overlap:          DefaultOverlap,
		minSentenceWords: DefaultMinSentenceWords,
		signatureLines:   DefaultSignatureLines,
		fillers:          fillers,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Chunk splits text with the given word budget and overlap using the default
// filters. Invalid budgets fall back to the defaults.
func Chunk(text string, maxWords, overlap int) []string {
	if maxWords < 1 {
		maxWords = DefaultMaxWords
	}
	if overlap < 0 {
		overlap = 0
	}
	c, err := New(WithMaxWords(maxWords), WithOverlap(overlap))
	if err != nil {
		return nil
	}
	return c.Chunk(text)
}

// SeedSentences converts an overlap setting into the number of trailing
// sentences carried into the next chunk: ceil(overlap/10).
func SeedSentences(overlap int) int {
	if overlap <= 0 {
		return 0
	}
	return (overlap + 9) / 10
}

// Split chunks text and assigns each chunk its position.
func (c *Chunker) Split(text string) []core.Chunk {
	contents := c.Chunk(text)
	chunks := make([]core.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = core.Chunk{Index: i, Content: content}
	}
	return chunks
}

// Chunk splits text into chunks in input order. Empty or whitespace-only
// input yields an empty result.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		c.logger.Debug("empty input, nothing to chunk")
		return []string{}
	}

	cleaned := Preprocess(text, c.signatureLines)
	chunks := []string{}
	for _, paragraph := range paragraphSplit.Split(cleaned, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if CountWords(paragraph) <= c.maxWords {
			if chunk, ok := c.compactParagraph(paragraph); ok {
				chunks = append(chunks, chunk)
			}
			continue
		}
		chunks = append(chunks, c.packSentences(paragraph)...)
	}

	c.logger.Debug("chunked text", "chunks", len(chunks), "maxWords", c.maxWords, "overlap", c.overlap)
	return chunks
}

// compactParagraph drops low-information sentences from a paragraph that fits
// the budget. Dropped sentences are cut out of the original text, so the
// remaining text keeps its spacing and line breaks.
func (c *Chunker) compactParagraph(paragraph string) (string, bool) {
	var out []byte
	kept := 0
	cursor := 0
	for _, sentence := range SplitSentences(paragraph) {
		pos := strings.Index(paragraph[cursor:], sentence)
		if pos < 0 {
			continue
		}
		pos += cursor
		end := pos + len(sentence)
		if !c.lowInformation(sentence) {
			out = append(out, paragraph[cursor:end]...)
			cursor = end
			kept++
			continue
		}

		out = append(out, paragraph[cursor:pos]...)
		cursor = end
		for cursor < len(paragraph) && (paragraph[cursor] == ' ' || paragraph[cursor] == '\t') {
			cursor++
		}
		if cursor == len(paragraph) || paragraph[cursor] == '\n' {
			out = bytes.TrimRight(out, " \t")
			if len(out) == 0 || out[len(out)-1] == '\n' {
				if cursor < len(paragraph) {
					cursor++
				}
			}
		}
	}
	if kept == 0 {
		return "", false
	}
	out = append(out, paragraph[cursor:]...)
	return strings.TrimSpace(string(out)), true
}

// packSentences greedily fills chunks with whole sentences. After each flush the
// buffer keeps its last SeedSentences(overlap) sentences.
func (c *Chunker) packSentences(paragraph string) []string {
	seed := SeedSentences(c.overlap)

	var chunks []string
	var buffer []string
	words := 0
	for _, sentence := range c.filter(SplitSentences(paragraph)) {
		n := CountWords(sentence)
		if len(buffer) > 0 && words+n > c.maxWords {
			chunks = append(chunks, strings.Join(buffer, " "))
			if seed < len(buffer) {
				buffer = append([]string(nil), buffer[len(buffer)-seed:]...)
			}
			words = 0
			for _, s := range buffer {
				words += CountWords(s)
			}
		}
		buffer = append(buffer, sentence)
		words += n
	}
	if len(buffer) > 0 {
		chunks = append(chunks, strings.Join(buffer, " "))
	}
	return chunks
}

func (c *Chunker) filter(sentences []string) []string {
	kept := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if !c.lowInformation(s) {
			kept = append(kept, s)
		}
	}
	return kept
}

// lowInformation reports whether a sentence is too short or a filler phrase.
func (c *Chunker) lowInformation(sentence string) bool {
	if c.minSentenceWords > 0 && CountWords(sentence) < c.minSentenceWords {
		return true
	}
	return c.isFiller(sentence)
}

func (c *Chunker) isFiller(sentence string) bool {
	normalized := strings.ToLower(strings.Trim(sentence, " \t\n.,!?;:-\"'"))
	for _, re := range c.fillers {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func compileFillers(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
