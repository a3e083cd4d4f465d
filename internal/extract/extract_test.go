package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
	stdin  []byte
}

func (m *mockRunner) Run(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	m.stdin, _ = io.ReadAll(stdin)
	return m.output, m.err
}

type stubExtractor struct {
	text  string
	err   error
	calls int
}

func (s *stubExtractor) Extract(context.Context, []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestPDFExtractor_RejectsNonPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "plain text", data: []byte("just some text")},
		{name: "png header", data: []byte("\x89PNG\r\n\x1a\n")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, err := NewPDFExtractor().Extract(context.Background(), tc.data)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Empty(t, text)
		})
	}
}

// buildPDF writes a minimal uncompressed PDF with one page per content
// stream, all pages sharing a Helvetica font named F1.
func buildPDF(pageContents ...string) []byte {
	var objects []string
	kids := make([]string, len(pageContents))
	for i := range pageContents {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pageContents)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, content := range pageContents {
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
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

func TestPDFExtractor_Extract(t *testing.T) {
	tests := []struct {
		name    string
		pages   []string
		want    string
		wantErr error
	}{
		{
			name:  "single text page",
			pages: []string{"BT /F1 24 Tf 72 700 Td (Hello World) Tj ET"},
			want:  "Hello World\n",
		},
		{
			name: "pages in order",
			pages: []string{
				"BT /F1 12 Tf 72 700 Td (first page) Tj ET",
				"BT /F1 12 Tf 72 700 Td [(second) -250 ( page)] TJ ET",
			},
			want: "first page\nsecond page\n",
		},
		{
			name:  "page without text",
			pages: []string{"0 0 m 100 100 l S"},
			want:  "",
		},
		{
			name:  "blank page between text pages",
			pages: []string{"BT /F1 12 Tf (one) Tj ET", "0 0 m 10 10 l S", "BT /F1 12 Tf (two) Tj ET"},
			want:  "one\ntwo\n",
		},
		{
			name:    "no pages",
			pages:   nil,
			wantErr: ErrNoText,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, err := NewPDFExtractor().Extract(context.Background(), buildPDF(tc.pages...))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, text)
		})
	}
}

func TestPDFExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFExtractor().Extract(ctx, buildPDF("BT /F1 12 Tf (text) Tj ET"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPDFExtractor_TruncatedPDF(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPopplerExtractor(t *testing.T) {
	runner := &mockRunner{output: []byte("page one\fpage two")}
	e := NewPopplerExtractorWithRunner(runner)
	data := []byte("%PDF-1.7 fake body")

	text, err := e.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "page one\fpage two", text)
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-", "-"}, runner.args)
	assert.Equal(t, data, runner.stdin)
	assert.True(t, e.Available())
}

func TestPopplerExtractor_Errors(t *testing.T) {
	t.Run("not a pdf", func(t *testing.T) {
		runner := &mockRunner{}
		_, err := NewPopplerExtractorWithRunner(runner).Extract(context.Background(), []byte("hello"))
		assert.ErrorIs(t, err, ErrMalformed)
		assert.Empty(t, runner.name)
	})

	t.Run("command fails", func(t *testing.T) {
		runner := &mockRunner{err: errors.New("exit status 1")}
		_, err := NewPopplerExtractorWithRunner(runner).Extract(context.Background(), []byte("%PDF-1.4"))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestFallback(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		chain     []*stubExtractor
		wantText  string
		wantErr   error
		wantCalls []int
	}{
		{
			name:      "first wins",
			chain:     []*stubExtractor{{text: "hello"}, {text: "ignored"}},
			wantText:  "hello",
			wantCalls: []int{1, 0},
		},
		{
			name:      "error then success",
			chain:     []*stubExtractor{{err: boom}, {text: "second"}},
			wantText:  "second",
			wantCalls: []int{1, 1},
		},
		{
			name:      "blank then success",
			chain:     []*stubExtractor{{text: "  \n"}, {text: "second"}},
			wantText:  "second",
			wantCalls: []int{1, 1},
		},
		{
			name:      "blank then error is blank",
			chain:     []*stubExtractor{{text: " "}, {err: boom}},
			wantText:  "",
			wantCalls: []int{1, 1},
		},
		{
			name:      "all fail returns first error",
			chain:     []*stubExtractor{{err: boom}, {err: errors.New("other")}},
			wantErr:   boom,
			wantCalls: []int{1, 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f Fallback
			for _, s := range tc.chain {
				f = append(f, s)
			}
			text, err := f.Extract(context.Background(), []byte("%PDF-"))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantText, text)
			for i, s := range tc.chain {
				assert.Equal(t, tc.wantCalls[i], s.calls)
			}
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ Extractor = (*PDFExtractor)(nil)
	var _ Extractor = (*PopplerExtractor)(nil)
	var _ Extractor = Fallback{}
}
