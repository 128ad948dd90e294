package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

// DocumentRepository handles the documents table.
type DocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sql.DB, logger *slog.Logger) *DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

const documentColumns = `
			id
		  , title
		  , original_filename
		  , file_path
		  , storage_key
		  , mime_type
		  , content
		  , ocr_text
		  , ocr_error
		  , thumbnail_path
		  , page_count
		  , summary
		  , correspondent_id
		  , document_type_id
		  , storage_path_id
		  , tags
		  , is_indexed
		  , indexed_at
		  , created_at
		  , updated_at`

func (r *DocumentRepository) DocumentByID(ctx context.Context, id string) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	document, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDocumentError("get", id, persistence.ErrDocumentNotFound)
		}

		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	return document, nil
}

func (r *DocumentRepository) SaveDocument(ctx context.Context, document *models.Document) error {
	now := time.Now().UTC()

	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}

	document.UpdatedAt = now

	tagsJSON, err := json.Marshal(document.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			original_filename = EXCLUDED.original_filename,
			file_path = EXCLUDED.file_path,
			storage_key = EXCLUDED.storage_key,
			mime_type = EXCLUDED.mime_type,
			content = EXCLUDED.content,
			ocr_text = EXCLUDED.ocr_text,
			ocr_error = EXCLUDED.ocr_error,
			thumbnail_path = EXCLUDED.thumbnail_path,
			page_count = EXCLUDED.page_count,
			summary = EXCLUDED.summary,
			correspondent_id = EXCLUDED.correspondent_id,
			document_type_id = EXCLUDED.document_type_id,
			storage_path_id = EXCLUDED.storage_path_id,
			tags = EXCLUDED.tags,
			is_indexed = EXCLUDED.is_indexed,
			indexed_at = EXCLUDED.indexed_at,
			updated_at = EXCLUDED.updated_at
	`,
		document.ID,
		document.Title,
		document.OriginalFilename,
		nullString(document.FilePath),
		nullString(document.StorageKey),
		nullString(document.MimeType),
		nullString(document.Content),
		nullString(document.OCRText),
		nullString(document.OCRError),
		nullString(document.ThumbnailPath),
		nullInt(document.PageCount),
		nullString(document.Summary),
		nullString(document.CorrespondentID),
		nullString(document.DocumentTypeID),
		nullString(document.StoragePathID),
		tagsJSON,
		document.IsIndexed,
		document.IndexedAt,
		document.CreatedAt,
		document.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", document.ID, err)
	}

	return nil
}

// PendingDocuments returns documents not yet indexed, oldest first.
func (r *DocumentRepository) PendingDocuments(ctx context.Context, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE is_indexed = false
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending documents: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	documents := make([]*models.Document, 0)

	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		documents = append(documents, document)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		document                                                     models.Document
		filePath, storageKey, mimeType, content, ocrText, ocrError   sql.NullString
		thumbnail, summary, correspondent, documentType, storagePath sql.NullString
		pageCount                                                    sql.NullInt64
		tagsJSON                                                     []byte
		indexedAt                                                    sql.NullTime
	)

	err := row.Scan(
		&document.ID,
		&document.Title,
		&document.OriginalFilename,
		&filePath,
		&storageKey,
		&mimeType,
		&content,
		&ocrText,
		&ocrError,
		&thumbnail,
		&pageCount,
		&summary,
		&correspondent,
		&documentType,
		&storagePath,
		&tagsJSON,
		&document.IsIndexed,
		&indexedAt,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	document.FilePath = filePath.String
	document.StorageKey = storageKey.String
	document.MimeType = mimeType.String
	document.Content = content.String
	document.OCRText = ocrText.String
	document.OCRError = ocrError.String
	document.ThumbnailPath = thumbnail.String
	document.PageCount = intPtr(pageCount)
	document.Summary = summary.String
	document.CorrespondentID = correspondent.String
	document.DocumentTypeID = documentType.String
	document.StoragePathID = storagePath.String
	document.IndexedAt = timePtr(indexedAt)

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &document.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &document, nil
}
