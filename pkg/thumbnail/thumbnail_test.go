package thumbnail

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

func newRenderer(t *testing.T, render PageRenderer) (*Renderer, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "thumbs")

	return New(dir, 0, slog.New(slog.NewTextHandler(io.Discard, nil))).WithPageRenderer(render), dir
}

func TestGenerate_WritesPNG(t *testing.T) {
	r, dir := newRenderer(t, func(string) ([]byte, error) { return []byte("png-bytes"), nil })

	name, err := r.Generate(context.Background(), "/docs/invoice.PDF", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1.png", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestGenerate_Errors(t *testing.T) {
	r, _ := newRenderer(t, func(string) ([]byte, error) { return nil, errors.New("convert: not found") })

	_, err := r.Generate(context.Background(), "/docs/letter.docx", "doc-1")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = r.Generate(context.Background(), "/docs/letter.pdf", "doc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "convert: not found")
}
