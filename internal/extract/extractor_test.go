package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePDF serves canned page texts; a nil entry fails, a "panic" entry panics.
type fakePDF struct {
	pages []*string
}

func (f *fakePDF) NumPage() int { return len(f.pages) }

func (f *fakePDF) PageText(page int) (string, error) {
	p := f.pages[page-1]
	if p == nil {
		return "", errors.New("malformed content stream")
	}
	if *p == "panic" {
		panic("index out of range")
	}
	return *p, nil
}

func str(s string) *string { return &s }

func openerFor(doc PDFDocument) PDFOpener {
	return func([]byte) (PDFDocument, error) { return doc, nil }
}

func TestExtract_PlainText(t *testing.T) {
	e := New(nil)

	res := e.Extract([]byte("Unit 1: Limits\nUnit 2: Derivatives"), "text/plain")
	assert.Equal(t, "Unit 1: Limits\nUnit 2: Derivatives", res.Text)
	assert.False(t, res.Degraded())

	res = e.Extract([]byte("\xef\xbb\xbfwith bom"), "text/markdown")
	assert.Equal(t, "with bom", res.Text)
}

func TestExtract_PlainTextInvalidUTF8IsEmpty(t *testing.T) {
	res := New(nil).Extract([]byte{'o', 'k', 0xff, 0xfe, 0x00}, "text/plain")

	assert.Empty(t, res.Text)
	assert.True(t, res.Blank())
	require.Len(t, res.Degradations, 1)
	assert.Equal(t, DecodeFailed, res.Degradations[0].Kind)
}

func TestExtract_PDFMalformedMiddlePage(t *testing.T) {
	doc := &fakePDF{pages: []*string{str("Page one: sets."), nil, str("Page three: relations.")}}

	res := NewWithPDFOpener(openerFor(doc), nil).Extract([]byte("%PDF"), MimeTypePDF)

	assert.Equal(t, "Page one: sets.\nPage three: relations.", res.Text)
	require.Len(t, res.Degradations, 1)
	assert.Equal(t, PageFailed, res.Degradations[0].Kind)
	assert.Equal(t, 2, res.Degradations[0].Page)
}

func TestExtract_PDFPanickingPageIsContained(t *testing.T) {
	doc := &fakePDF{pages: []*string{str("first"), str("panic"), str("third")}}

	res := NewWithPDFOpener(openerFor(doc), nil).Extract(nil, MimeTypePDF)

	assert.Equal(t, "first\nthird", res.Text)
	require.Len(t, res.Degradations, 1)
	assert.Contains(t, res.Degradations[0].Detail, "panic")
}

func TestExtract_PDFEmptyPagesSkipped(t *testing.T) {
	doc := &fakePDF{pages: []*string{str(""), str("only text"), str("")}}

	res := NewWithPDFOpener(openerFor(doc), nil).Extract(nil, MimeTypePDF)
	assert.Equal(t, "only text", res.Text)
	assert.False(t, res.Degraded())
}

func TestExtract_PDFDropsInvalidSequences(t *testing.T) {
	doc := &fakePDF{pages: []*string{str("Euler\xed\xa0\x80 identity �e^{iπ} + 1 = 0")}}

	res := NewWithPDFOpener(openerFor(doc), nil).Extract(nil, MimeTypePDF)

	assert.Equal(t, "Euler identity e^{iπ} + 1 = 0", res.Text)
	require.Len(t, res.Degradations, 1)
	assert.Equal(t, InvalidSequencesDropped, res.Degradations[0].Kind)
}

func TestExtract_PDFParseFailureFallsBackToText(t *testing.T) {
	opener := func([]byte) (PDFDocument, error) { return nil, errors.New("malformed xref") }

	res := NewWithPDFOpener(opener, nil).Extract([]byte("Mislabelled notes about graphs.\n"), MimeTypePDF)

	assert.Equal(t, "Mislabelled notes about graphs.\n", res.Text)
	require.NotEmpty(t, res.Degradations)
	assert.Equal(t, ParseFailed, res.Degradations[0].Kind)
}

func TestExtract_CorruptPDFYieldsBlankText(t *testing.T) {
	corrupt := append([]byte("%PDF-1.7\n"), make([]byte, 256)...)
	for i := 9; i < len(corrupt); i++ {
		corrupt[i] = byte(0x80 + i%0x40)
	}

	res := New(nil).Extract(corrupt, MimeTypePDF)

	assert.True(t, res.Blank(), "got %q", res.Text)
	require.NotEmpty(t, res.Degradations)
	assert.Equal(t, ParseFailed, res.Degradations[0].Kind)
}

func TestExtract_NotAPDFAtAll(t *testing.T) {
	res := New(nil).Extract([]byte("plain words pretending to be a pdf"), MimeTypePDF)
	assert.Equal(t, "plain words pretending to be a pdf", res.Text)
}

func TestExtract_UnsupportedType(t *testing.T) {
	res := New(nil).Extract([]byte("PK\x03\x04"), "application/zip")
	assert.True(t, res.Blank())
	require.Len(t, res.Degradations, 1)
	assert.Equal(t, Unsupported, res.Degradations[0].Kind)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("text/plain"))
	assert.True(t, Supported("text/csv"))
	assert.True(t, Supported("application/pdf"))
	assert.False(t, Supported("application/pdf+zip"))
	assert.False(t, Supported("image/png"))
	assert.False(t, Supported("application/vnd.google-apps.folder"))
}

func TestDropInvalid(t *testing.T) {
	assert.Equal(t, "abc", DropInvalid("a\xffb\xc0c"))
	assert.Equal(t, "日本語", DropInvalid("日本語"))
	assert.Equal(t, "", DropInvalid(strings.Repeat("�", 3)))
}
