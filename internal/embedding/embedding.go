// Package embedding defines the table-selection-by-semantic-similarity
// seam, deliberately left unimplemented: the model that would back it is
// out of scope, and ResolveTableFromQuery's alias-substring matching is
// the only table resolver this backend actually runs.
package embedding

import "context"

// ErrEmbeddingUnavailable is returned by every TableEmbedder method; there
// is currently no implementation backed by a real embedding model.
var ErrEmbeddingUnavailable = errEmbeddingUnavailable{}

type errEmbeddingUnavailable struct{}

func (errEmbeddingUnavailable) Error() string {
	return "embedding-based table selection is unavailable"
}

// TableEmbedder ranks candidate table names by semantic similarity to a
// natural-language query. A real implementation would embed query and
// candidates (e.g. via fastembed) and return candidates sorted by cosine
// distance.
type TableEmbedder interface {
	RankTables(ctx context.Context, query string, candidates []string) ([]string, error)
}

// NoopEmbedder is the only TableEmbedder this backend wires up. It always
// fails, so callers fall through to the deterministic alias resolver.
type NoopEmbedder struct{}

// RankTables always returns ErrEmbeddingUnavailable.
func (NoopEmbedder) RankTables(_ context.Context, _ string, _ []string) ([]string, error) {
	return nil, ErrEmbeddingUnavailable
}
