package port

import "ragpipe/internal/domain"

// Splitter turns Documents into ordered chunks. Chunks keep the path of
// the Document they came from.
type Splitter interface {
	SplitDocuments(docs []domain.Document) ([]domain.Document, error)
}
