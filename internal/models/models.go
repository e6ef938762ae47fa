package models

// Chunk is one retrieval unit produced by splitting a document.
// SourceOffset is the rune offset of the chunk's first rune in the
// processed document text, Index is the zero-based chunk position.
type Chunk struct {
	Text         string
	SourceOffset int
	Index        int
}

// StoredRecord is one point uploaded to the vector collection. The
// payload carries the chunk text plus upload metadata; after upload the
// record is owned by the remote store.
type StoredRecord struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// SearchResult is one retrieved passage, best match first. Score is the
// final ranking score; VectorScore and KeywordScore are the components
// it was fused from.
type SearchResult struct {
	ID           string
	Score        float64
	VectorScore  float64
	KeywordScore float64
	Text         string
	Metadata     map[string]any
}

// ChatTurn is one entry of the in-memory conversation history.
// Role is RoleUser or RoleAssistant. History is never persisted.
type ChatTurn struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CollectionInfo mirrors the collection statistics reported by the
// vector store.
type CollectionInfo struct {
	Name        string
	PointsCount int
	VectorSize  int
	Distance    string
	Status      string
}

// DocumentStats summarizes a processed document before upload.
type DocumentStats struct {
	Path          string
	FileSizeBytes int64
	TextLength    int
	TotalChunks   int
	AvgChunkSize  float64
	MinChunkSize  int
	MaxChunkSize  int
	OverlapSize   int
}
