package chunker

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// splitDepth is the deepest heading level that starts a new fragment.
const splitDepth = 2

// splitMarkdown cuts at H1 and H2 boundaries and records the header hierarchy.
// Text before the first heading becomes its own fragment; deeper headings stay
// inside their parent's fragment.
func (c *Chunker) splitMarkdown(source []byte) ([]Fragment, error) {
	doc := c.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(splitDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headings: %w", err)
	}

	if len(tree.Items) == 0 {
		return c.splitSentences(string(source)), nil
	}

	var frags []Fragment
	if first := findHeading(doc, string(tree.Items[0].ID)); first != nil {
		end := lineStart(source, first.Lines().At(0).Start)
		if pre := strings.TrimSpace(string(source[:end])); pre != "" {
			frags = append(frags, Fragment{Text: pre})
		}
	}
	collectSections(doc, source, tree.Items, nil, &frags)
	return frags, nil
}

// collectSections walks TOC items depth first, emitting one fragment per heading.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, frags *[]Fragment) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))

		heading := findHeading(doc, string(item.ID))
		if heading == nil {
			continue
		}

		*frags = append(*frags, Fragment{
			HeaderPath: formatHeaderPath(path),
			Text:       sectionBody(source, heading.Lines().At(0), nextBoundary(doc, heading)),
		})

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, path, frags)
		}
	}
}

// formatHeaderPath renders ["Unit 1", "Limits"] as "# Unit 1 > ## Limits".
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = strings.Repeat("#", i+1) + " " + segment
	}
	return strings.Join(parts, " > ")
}

func findHeading(root ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if v, ok := n.AttributeString("id"); ok {
			if b, ok := v.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextBoundary finds the first splitting heading after current.
// A nil result means the section runs to the end of the document.
func nextBoundary(root, current ast.Node) ast.Node {
	var next ast.Node
	passed := false

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !passed {
			passed = n == current
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= splitDepth {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return next
}

// sectionBody returns the text after the heading line up to the line of the next boundary.
func sectionBody(source []byte, heading text.Segment, next ast.Node) string {
	start := heading.Stop
	if i := bytes.IndexByte(source[start:], '\n'); i >= 0 {
		start += i + 1
	} else {
		start = len(source)
	}

	end := len(source)
	if next != nil {
		end = lineStart(source, next.Lines().At(0).Start)
	}
	if end < start {
		return ""
	}
	return strings.TrimSpace(string(source[start:end]))
}

// lineStart moves pos back to the first byte of its line.
func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
