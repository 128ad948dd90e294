package models

import "time"

// Document is a stored file moving through the processing pipeline.
type Document struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	OriginalFilename string     `json:"original_filename"`
	FilePath         string     `json:"file_path,omitempty"`
	StorageKey       string     `json:"storage_key,omitempty"`
	MimeType         string     `json:"mime_type,omitempty"`
	Content          string     `json:"content,omitempty"`
	OCRText          string     `json:"ocr_text,omitempty"`
	OCRError         string     `json:"ocr_error,omitempty"`
	ThumbnailPath    string     `json:"thumbnail_path,omitempty"`
	PageCount        *int       `json:"page_count,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	CorrespondentID  string     `json:"correspondent_id,omitempty"`
	DocumentTypeID   string     `json:"document_type_id,omitempty"`
	StoragePathID    string     `json:"storage_path_id,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	IsIndexed        bool       `json:"is_indexed"`
	IndexedAt        *time.Time `json:"indexed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Text is the searchable text of the document used for matching and summaries.
func (d *Document) Text() string {
	text := d.Title
	if d.Content != "" {
		text += " " + d.Content
	} else if d.OCRText != "" {
		text += " " + d.OCRText
	}

	return text
}

// NeedsOCR reports whether the document has no extracted text yet or a previous attempt failed.
func (d *Document) NeedsOCR() bool {
	return (d.Content == "" && d.OCRText == "") || d.OCRError != ""
}

// MatchKind is the kind of classification a match rule assigns.
type MatchKind string

const (
	MatchKindTag           MatchKind = "tag"
	MatchKindCorrespondent MatchKind = "correspondent"
	MatchKindDocumentType  MatchKind = "document_type"
	MatchKindStoragePath   MatchKind = "storage_path"
)

// MatchAlgorithm selects how a rule's pattern is compared to document text.
type MatchAlgorithm string

const (
	MatchAny   MatchAlgorithm = "any"
	MatchAll   MatchAlgorithm = "all"
	MatchExact MatchAlgorithm = "exact"
	MatchRegex MatchAlgorithm = "regex"
)

// MatchRule assigns TargetID to documents whose text matches Pattern.
type MatchRule struct {
	ID              string         `json:"id"`
	Kind            MatchKind      `json:"kind"             validate:"required,oneof=tag correspondent document_type storage_path"`
	TargetID        string         `json:"target_id"        validate:"required"`
	Algorithm       MatchAlgorithm `json:"algorithm"        validate:"required,oneof=any all exact regex"`
	Pattern         string         `json:"pattern"          validate:"required"`
	CaseInsensitive bool           `json:"case_insensitive"`
}

// MatchingResult lists the classifications suggested for a document.
type MatchingResult struct {
	Attempted      bool     `json:"attempted"`
	Tags           []string `json:"tags"`
	Correspondents []string `json:"correspondents"`
	DocumentTypes  []string `json:"document_types"`
	StoragePaths   []string `json:"storage_paths"`
	Error          string   `json:"error,omitempty"`
}

// Empty reports whether no rule matched.
func (m MatchingResult) Empty() bool {
	return len(m.Tags) == 0 && len(m.Correspondents) == 0 && len(m.DocumentTypes) == 0 && len(m.StoragePaths) == 0
}

// ToMap exposes the result as workflow variables.
func (m MatchingResult) ToMap() map[string]any {
	return map[string]any{
		"tags":           toAnySlice(m.Tags),
		"correspondents": toAnySlice(m.Correspondents),
		"document_types": toAnySlice(m.DocumentTypes),
		"storage_paths":  toAnySlice(m.StoragePaths),
	}
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
