package models

import "errors"

var (
	// ErrLoad signals a missing, unreadable or empty input document.
	ErrLoad = errors.New("document load failed")
	// ErrEmbedding signals an embedding backend or input problem.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStore signals a vector store failure, including dimension mismatch.
	ErrStore = errors.New("vector store request failed")
	// ErrGeneration signals a chat completion API failure.
	ErrGeneration = errors.New("answer generation failed")
	// ErrConfig signals missing or invalid configuration. Fatal at startup,
	// before any network call.
	ErrConfig = errors.New("invalid configuration")
)
