package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/plexi-bot/plexi/internal/drive"
	"github.com/plexi-bot/plexi/internal/extract"
)

// memoryDrive serves a folder tree and file contents.
type memoryDrive struct {
	mu       sync.Mutex
	children map[string][]drive.FileDescriptor
	content  map[string][]byte
	failing  map[string]bool
	opens    map[string]int
}

func newMemoryDrive() *memoryDrive {
	return &memoryDrive{
		children: map[string][]drive.FileDescriptor{},
		content:  map[string][]byte{},
		failing:  map[string]bool{},
		opens:    map[string]int{},
	}
}

func (m *memoryDrive) folder(parent, id string) {
	m.children[parent] = append(m.children[parent], drive.FileDescriptor{ID: id, Name: id, MimeType: drive.MimeTypeFolder})
}

func (m *memoryDrive) file(parent, id, name, mimeType string, content []byte) {
	m.children[parent] = append(m.children[parent], drive.FileDescriptor{ID: id, Name: name, MimeType: mimeType})
	m.content[id] = content
}

func (m *memoryDrive) ListChildren(_ context.Context, parentID, _ string) (*drive.Page, error) {
	return &drive.Page{Items: m.children[parentID]}, nil
}

func (m *memoryDrive) Open(_ context.Context, fileID string) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[fileID]++

	if m.failing[fileID] {
		return nil, errors.New("connection reset by peer")
	}
	data, ok := m.content[fileID]
	if !ok {
		return nil, drive.ErrNotFound
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		ContentLength: int64(len(data)),
		Body:          io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// Fetch lets memoryDrive stand in for a ContentFetcher directly.
func (m *memoryDrive) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := m.Open(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// validPDFPrefix marks test content that the fake PDF parser accepts.
const validPDFPrefix = "%PDF-1.4 test\n"

// testPDF builds "PDF" bytes whose pages are separated by form feeds.
func testPDF(pages ...string) []byte {
	return []byte(validPDFPrefix + strings.Join(pages, "\f"))
}

type pagedDoc struct{ pages []string }

func (d pagedDoc) NumPage() int { return len(d.pages) }

func (d pagedDoc) PageText(page int) (string, error) { return d.pages[page-1], nil }

func fakePDFOpener(content []byte) (extract.PDFDocument, error) {
	if !bytes.HasPrefix(content, []byte(validPDFPrefix)) {
		return nil, errors.New("malformed PDF: missing xref")
	}
	return pagedDoc{pages: strings.Split(string(content[len(validPDFPrefix):]), "\f")}, nil
}

// corruptBytes looks like a PDF header followed by binary garbage.
func corruptBytes() []byte {
	b := []byte("%PDF-1.7\n")
	for i := 0; i < 512; i++ {
		b = append(b, byte(0x80+i%0x40))
	}
	return b
}

// hashEmbedder maps each word into one of dim buckets.
type hashEmbedder struct {
	dim   int
	calls int
}

func (e *hashEmbedder) Model() string { return "hash-embed-v1" }

func (e *hashEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,?!:")))
			v[h.Sum32()%uint32(e.dim)]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err := e.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

type failingEmbedder struct{}

func (failingEmbedder) Model() string { return "broken" }

func (failingEmbedder) GenerateEmbeddings(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding service unavailable")
}
