package domain

import "github.com/google/uuid"

// Document is a unit of text with a source path. Splitting produces new
// Documents (chunks) that inherit the path of their source.
type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DocumentMeta carries the metadata shared by a document and its chunks.
type DocumentMeta struct {
	Path string `json:"path"`
}

func NewDocument(path, content string) Document {
	return Document{Path: path, Content: content}
}

func (d Document) Meta() DocumentMeta {
	return DocumentMeta{Path: d.Path}
}

// StoredRecord is a chunk persisted in a vector index.
type StoredRecord struct {
	ID      uuid.UUID
	Path    string
	Content string
	Vector  []float32
}

// SimilarityResult is a single search hit. Higher scores are more similar.
type SimilarityResult struct {
	ID      uuid.UUID `json:"id"`
	Path    string    `json:"path"`
	Content string    `json:"content"`
	Score   float64   `json:"score"`
}

// Stats summarizes the contents of an index.
type Stats struct {
	Records   int    `json:"records"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Model     string `json:"model"`
}
