package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(run Runner) *Extractor {
	return New(Config{Languages: "eng+fra"}, slog.New(slog.NewTextHandler(io.Discard, nil))).WithRunner(run)
}

func TestExtractText_DispatchesOnExtension(t *testing.T) {
	var calls [][]string

	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))

		return []byte("Invoice 42\n\n\n\nTotal: 100  \n\f"), nil
	}

	e := newExtractor(run)

	text, err := e.ExtractText(context.Background(), "/tmp/scan.PDF")
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42\n\nTotal: 100", text)

	_, err = e.ExtractText(context.Background(), "/tmp/photo.jpg")
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, "pdftotext", calls[0][0])
	assert.Equal(t, []string{"tesseract", "/tmp/photo.jpg", "stdout", "-l", "eng+fra", "--psm", "3"}, calls[1])
}

func TestExtractText_PlainTextIsReadDirectly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0600))

	e := newExtractor(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("no command expected")

		return nil, nil
	})

	text, err := e.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractText_Errors(t *testing.T) {
	e := newExtractor(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	_, err := e.ExtractText(context.Background(), "/tmp/archive.zip")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = e.ExtractText(context.Background(), "/tmp/broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.pdf")
}
