// Package thumbnail renders the first page of a PDF document to a PNG preview.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/image"
	"github.com/dukex/docflow/pkg/protocol"
)

const DefaultDPI = 72

var ErrUnsupportedFormat = errors.New("unsupported file format for thumbnails")

var _ protocol.Thumbnailer = (*Renderer)(nil)

// PageRenderer turns page one of the PDF at path into image bytes.
type PageRenderer func(path string) ([]byte, error)

// Renderer writes {outputDir}/{documentID}.png.
type Renderer struct {
	outputDir string
	render    PageRenderer
	logger    *slog.Logger
}

func New(outputDir string, dpi int, logger *slog.Logger) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	return &Renderer{
		outputDir: outputDir,
		render:    imageMagickFirstPage(dpi),
		logger:    logger.With("module", "thumbnail"),
	}
}

// WithPageRenderer replaces the ImageMagick renderer.
func (r *Renderer) WithPageRenderer(render PageRenderer) *Renderer {
	r.render = render

	return r
}

// Generate renders sourcePath and returns the thumbnail file name.
func (r *Renderer) Generate(ctx context.Context, sourcePath, documentID string) (string, error) {
	if !strings.EqualFold(filepath.Ext(sourcePath), ".pdf") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(sourcePath))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := r.render(sourcePath)
	if err != nil {
		return "", fmt.Errorf("render thumbnail of %s: %w", documentID, err)
	}

	err = os.MkdirAll(r.outputDir, 0750)
	if err != nil {
		return "", fmt.Errorf("create thumbnail directory: %w", err)
	}

	name := filepath.Base(filepath.Clean(documentID)) + ".png"

	err = os.WriteFile(filepath.Join(r.outputDir, name), data, 0600)
	if err != nil {
		return "", fmt.Errorf("write thumbnail of %s: %w", documentID, err)
	}

	r.logger.DebugContext(ctx, "Thumbnail generated", "document_id", documentID, "file", name, "bytes", len(data))

	return name, nil
}

func imageMagickFirstPage(dpi int) PageRenderer {
	return func(path string) ([]byte, error) {
		pdfDoc, err := document.OpenPDF(path)
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		defer pdfDoc.Close()

		page, err := pdfDoc.ExtractPage(1)
		if err != nil {
			return nil, fmt.Errorf("extract page 1: %w", err)
		}

		renderer, err := image.NewImageMagickRenderer(config.ImageConfig{
			Format:  "png",
			DPI:     dpi,
			Options: map[string]any{"background": "white"},
		})
		if err != nil {
			return nil, fmt.Errorf("create renderer: %w", err)
		}

		return page.ToImage(renderer, nil)
	}
}
