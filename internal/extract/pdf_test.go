package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page and a
// correct cross-reference table.
func buildPDF(pages ...string) []byte {
	var objects []string

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestOpenPDF_ReadsEveryPage(t *testing.T) {
	doc, err := OpenPDF(buildPDF("Chapter one sets", "Chapter two graphs"))
	require.NoError(t, err)
	require.Equal(t, 2, doc.NumPage())

	first, err := doc.PageText(1)
	require.NoError(t, err)
	assert.Contains(t, first, "Chapter one sets")
}

func TestExtract_RealPDF(t *testing.T) {
	res := New(nil).Extract(buildPDF("Chapter one sets", "Chapter two graphs"), MimeTypePDF)

	assert.Empty(t, res.Degradations)
	assert.Contains(t, res.Text, "Chapter one sets")
	assert.Contains(t, res.Text, "Chapter two graphs")
	assert.Less(t, strings.Index(res.Text, "one"), strings.Index(res.Text, "two"))
}
