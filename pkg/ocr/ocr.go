// Package ocr extracts text from document files with pdftotext and tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dukex/docflow/pkg/protocol"
)

var ErrUnsupportedFormat = errors.New("unsupported file format for OCR")

var _ protocol.OCR = (*Extractor)(nil)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true, ".webp": true,
}

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

type Config struct {
	PdftotextPath string
	TesseractPath string
	Languages     string
}

// Extractor reads plain text files directly, PDFs through pdftotext and
// images through tesseract.
type Extractor struct {
	pdftotext string
	tesseract string
	languages string
	run       Runner
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Extractor {
	e := &Extractor{
		pdftotext: cfg.PdftotextPath,
		tesseract: cfg.TesseractPath,
		languages: cfg.Languages,
		run:       execRunner,
		logger:    logger.With("module", "ocr"),
	}

	if e.pdftotext == "" {
		e.pdftotext = "pdftotext"
	}

	if e.tesseract == "" {
		e.tesseract = "tesseract"
	}

	if e.languages == "" {
		e.languages = "eng"
	}

	return e
}

// WithRunner replaces the command runner.
func (e *Extractor) WithRunner(run Runner) *Extractor {
	e.run = run

	return e
}

// ExtractText returns the text of the file at path. An empty string means
// the file holds no recognizable text.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		out []byte
		err error
	)

	switch {
	case ext == ".txt" || ext == ".md" || ext == ".csv":
		out, err = os.ReadFile(path)
	case ext == ".pdf":
		out, err = e.run(ctx, e.pdftotext, "-layout", "-enc", "UTF-8", path, "-")
	case imageExtensions[ext]:
		out, err = e.run(ctx, e.tesseract, path, "stdout", "-l", e.languages, "--psm", "3")
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", filepath.Base(path), err)
	}

	text := normalize(out)
	e.logger.DebugContext(ctx, "Extracted text", "file", filepath.Base(path), "chars", len(text))

	return text, nil
}

// normalize drops invalid UTF-8 and collapses the blank lines left by layout mode.
func normalize(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), "")
	text = strings.ReplaceAll(text, "\f", "\n")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank {
				continue
			}

			blank = true
		} else {
			blank = false
		}

		kept = append(kept, line)
	}

	result := strings.TrimSpace(strings.Join(kept, "\n"))
	if !utf8.ValidString(result) {
		return ""
	}

	return result
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return out, nil
}
