package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// minFallbackRatio is the share of input bytes that must survive the raw-text
// fallback for the result to count as text rather than binary noise.
const minFallbackRatio = 0.5

var errNullPage = errors.New("page object is null")

// PDFDocument exposes page-level text extraction. Pages are numbered from 1.
type PDFDocument interface {
	NumPage() int
	PageText(page int) (string, error)
}

// PDFOpener parses a PDF from memory.
type PDFOpener func(content []byte) (PDFDocument, error)

// OpenPDF parses content with ledongthuc/pdf.
func OpenPDF(content []byte) (doc PDFDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	return &ledongthucDocument{reader: r}, nil
}

type ledongthucDocument struct {
	reader *pdf.Reader
}

func (d *ledongthucDocument) NumPage() int {
	return d.reader.NumPage()
}

func (d *ledongthucDocument) PageText(page int) (string, error) {
	p := d.reader.Page(page)
	if p.V.IsNull() {
		return "", errNullPage
	}
	return p.GetPlainText(nil)
}

// extractPDF reads every page it can. A bad page contributes nothing; an
// unreadable document falls back to the printable text in its raw bytes.
func (e *Extractor) extractPDF(content []byte) Result {
	doc, err := e.openPDF(content)
	if err != nil {
		res := rawTextFallback(content)
		res.Degradations = append([]Degradation{{Kind: ParseFailed, Detail: err.Error()}}, res.Degradations...)
		return res
	}

	var (
		res   Result
		pages []string
	)
	for i := 1; i <= doc.NumPage(); i++ {
		text, err := pageText(doc, i)
		if err != nil {
			res.Degradations = append(res.Degradations, Degradation{Kind: PageFailed, Page: i, Detail: err.Error()})
			continue
		}
		if text != "" {
			pages = append(pages, text)
		}
	}

	joined := strings.Join(pages, "\n")
	cleaned := DropInvalid(joined)
	if len(cleaned) != len(joined) {
		res.Degradations = append(res.Degradations, Degradation{
			Kind:   InvalidSequencesDropped,
			Detail: fmt.Sprintf("%d bytes removed", len(joined)-len(cleaned)),
		})
	}
	res.Text = cleaned
	return res
}

// pageText isolates panics raised by malformed content streams.
func pageText(doc PDFDocument, page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()
	return doc.PageText(page)
}

// DropInvalid removes invalid UTF-8 sequences and U+FFFD, which the PDF
// reader substitutes for unpaired UTF-16 surrogates. Everything else is kept.
func DropInvalid(s string) string {
	s = strings.ToValidUTF8(s, "")
	if !strings.ContainsRune(s, utf8.RuneError) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}

// rawTextFallback decodes content as UTF-8, ignoring errors, and keeps only
// printable runes. Mostly-binary input yields empty text.
func rawTextFallback(content []byte) Result {
	if len(content) == 0 {
		return Result{}
	}

	var b strings.Builder
	kept := 0
	for s := DropInvalid(string(content)); s != ""; {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
			kept += size
		}
	}

	if float64(kept)/float64(len(content)) < minFallbackRatio {
		return Result{Degradations: []Degradation{{
			Kind:   DecodeFailed,
			Detail: fmt.Sprintf("only %d of %d bytes are text", kept, len(content)),
		}}}
	}
	return Result{Text: b.String()}
}
