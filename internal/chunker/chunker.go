// Package chunker splits extracted document text into retrievable fragments.
package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
)

// Defaults for sentence windows.
const (
	DefaultSentencesPerChunk = 8
	DefaultOverlapSentences  = 1
	// maxSentenceChars caps runs of text with no sentence punctuation.
	maxSentenceChars = 1200
)

// Fragment is a contiguous piece of a document.
type Fragment struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Markdown only: "# Unit 1 > ## Limits"
	Text       string // Fragment text without the header path
}

// EmbeddingText is the text to embed: the header path gives the fragment its context.
func (f Fragment) EmbeddingText() string {
	if f.HeaderPath == "" {
		return f.Text
	}
	return f.HeaderPath + "\n\n" + f.Text
}

// Options configures sentence windows.
type Options struct {
	SentencesPerChunk int
	OverlapSentences  int
}

// Chunker splits markdown at headers and everything else into overlapping sentence windows.
type Chunker struct {
	md        goldmark.Markdown
	sentences int
	overlap   int
}

// New creates a Chunker; zero options take the defaults.
func New(opts Options) *Chunker {
	if opts.SentencesPerChunk <= 0 {
		opts.SentencesPerChunk = DefaultSentencesPerChunk
	}
	if opts.OverlapSentences < 0 || opts.OverlapSentences >= opts.SentencesPerChunk {
		opts.OverlapSentences = min(DefaultOverlapSentences, opts.SentencesPerChunk-1)
	}
	return &Chunker{
		md: goldmark.New(
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		sentences: opts.SentencesPerChunk,
		overlap:   opts.OverlapSentences,
	}
}

// Split fragments text. Whitespace-only fragments are dropped and indexes are
// renumbered so they stay dense.
func (c *Chunker) Split(text, mimeType string) ([]Fragment, error) {
	var (
		frags []Fragment
		err   error
	)
	if isMarkdown(mimeType) {
		frags, err = c.splitMarkdown([]byte(text))
		if err != nil {
			return nil, err
		}
	} else {
		frags = c.splitSentences(text)
	}

	out := frags[:0]
	for _, f := range frags {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		f.Index = len(out)
		out = append(out, f)
	}
	return out, nil
}

func isMarkdown(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown":
		return true
	}
	return false
}
