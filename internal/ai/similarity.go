package ai

import (
	"context"
	"fmt"

	embedding "github.com/matthewjhunter/go-embedding"

	"github.com/matthewjhunter/quill/internal/storage"
)

// SimilarityChecker flags drafts that repeat a recent post almost verbatim.
type SimilarityChecker struct {
	embedder  embedding.Embedder
	threshold float64
}

// NewSimilarityChecker creates a checker. The threshold (0-1) is the cosine
// similarity at which a draft counts as a near duplicate.
func NewSimilarityChecker(embedder embedding.Embedder, threshold float64) *SimilarityChecker {
	return &SimilarityChecker{embedder: embedder, threshold: threshold}
}

func (s *SimilarityChecker) Threshold() float64 { return s.threshold }

// MaxSimilarity embeds the draft and posts in one batch and returns the
// highest cosine similarity between the draft and any post.
func (s *SimilarityChecker) MaxSimilarity(ctx context.Context, draft string, posts []storage.Post) (float64, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	draftVec, err := embedding.Single(ctx, s.embedder, draft)
	if err != nil {
		return 0, fmt.Errorf("embed draft: %w", err)
	}

	texts := make([]string, len(posts))
	for i, p := range posts {
		texts[i] = p.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed posts: %w", err)
	}

	var best float64
	for _, v := range vecs {
		if sim := embedding.CosineSimilarity(draftVec, v); sim > best {
			best = sim
		}
	}
	return best, nil
}
