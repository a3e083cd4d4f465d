// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrMalformed is returned when the input is not a readable PDF.
	ErrMalformed = errors.New("input is not a well-formed PDF document")

	// ErrNoText is returned when a PDF has no pages to read text from.
	ErrNoText = errors.New("document contains no extractable text")
)

var pdfMagic = []byte("%PDF-")

// Extractor converts raw document bytes to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor reads text with a pure Go PDF parser.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

var _ Extractor = (*PDFExtractor)(nil)

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return "", ErrMalformed
	}

	// The parser panics on some truncated or corrupt xref tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", ErrNoText
	}

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			log.Printf("Warning: failed to read text from page %d: %v", i, err)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// CommandRunner runs an external program with stdin and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// PopplerExtractor shells out to pdftotext from poppler-utils.
type PopplerExtractor struct {
	runner CommandRunner
}

func NewPopplerExtractor() *PopplerExtractor {
	return &PopplerExtractor{runner: execRunner{}}
}

// NewPopplerExtractorWithRunner is used by tests to replace the process runner.
func NewPopplerExtractorWithRunner(runner CommandRunner) *PopplerExtractor {
	return &PopplerExtractor{runner: runner}
}

var _ Extractor = (*PopplerExtractor)(nil)

// Available reports whether pdftotext is on PATH.
func (e *PopplerExtractor) Available() bool {
	if _, ok := e.runner.(execRunner); !ok {
		return true
	}
	_, err := exec.LookPath("pdftotext")
	return err == nil
}

func (e *PopplerExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return "", ErrMalformed
	}
	out, err := e.runner.Run(ctx, bytes.NewReader(data), "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(out), nil
}

// Fallback tries each extractor in order and returns the first non-empty
// result. If every extractor fails, the first error is returned.
type Fallback []Extractor

var _ Extractor = Fallback(nil)

func (f Fallback) Extract(ctx context.Context, data []byte) (string, error) {
	var firstErr error
	succeeded := false
	for _, e := range f {
		t, err := e.Extract(ctx, data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if strings.TrimSpace(t) != "" {
			return t, nil
		}
		succeeded = true
	}
	if succeeded {
		return "", nil
	}
	return "", firstErr
}

// Default returns the pure Go extractor, backed by pdftotext when installed.
func Default() Extractor {
	poppler := NewPopplerExtractor()
	if poppler.Available() {
		return Fallback{NewPDFExtractor(), poppler}
	}
	return NewPDFExtractor()
}
