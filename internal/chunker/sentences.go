package chunker

import (
	"regexp"
	"strings"
)

// sentencePattern ends a sentence at terminal punctuation followed by space,
// at a blank line, or at end of text.
var sentencePattern = regexp.MustCompile(`(?s)\S.*?(?:[.!?]["')\]]*(?:\s|$)|\n[ \t]*\n|$)`)

// splitSentences groups sentences into windows that overlap by c.overlap sentences.
func (c *Chunker) splitSentences(text string) []Fragment {
	sentences := sentencesOf(text)
	if len(sentences) == 0 {
		return nil
	}

	var frags []Fragment
	step := c.sentences - c.overlap
	for start := 0; start < len(sentences); start += step {
		end := min(start+c.sentences, len(sentences))
		frags = append(frags, Fragment{Text: strings.Join(sentences[start:end], " ")})
		if end == len(sentences) {
			break
		}
	}
	return frags
}

// sentencesOf returns whitespace-normalised sentences, splitting overlong runs at word boundaries.
func sentencesOf(text string) []string {
	var out []string
	for _, raw := range sentencePattern.FindAllString(text, -1) {
		s := strings.Join(strings.Fields(raw), " ")
		if s == "" {
			continue
		}
		out = append(out, splitLong(s, maxSentenceChars)...)
	}
	return out
}

func splitLong(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var (
		parts []string
		b     strings.Builder
	)
	for _, word := range strings.Fields(s) {
		if b.Len() > 0 && b.Len()+1+len(word) > limit {
			parts = append(parts, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}
