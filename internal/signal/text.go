// Package signal provides the per-signal similarity scorers the matching
// engine fuses into a final score: text, image, distance, time, and
// structured metadata.
package signal

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/onnwee/reclaim/internal/embed"
)

// Embedder is the subset of the embedding client the text scorer needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string, kind embed.Kind) ([][]float64, error)
}

// TextScorer compares item texts. The primary path embeds the base text as
// a query and all candidate texts as one passage batch, scoring by cosine
// similarity. When the provider is disabled or fails, the whole batch
// degrades to token-set Jaccard overlap; a provider error never aborts the
// overall ranking.
type TextScorer struct {
	embedder Embedder
	enabled  bool
	logger   *slog.Logger
}

// NewTextScorer creates a text scorer. With enabled false or a nil embedder
// the scorer always uses the keyword-overlap fallback and performs no
// network calls.
func NewTextScorer(embedder Embedder, enabled bool, logger *slog.Logger) *TextScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextScorer{
		embedder: embedder,
		enabled:  enabled,
		logger:   logger,
	}
}

// Score returns one score in [0, 1] per candidate text.
func (s *TextScorer) Score(ctx context.Context, baseText string, candidateTexts []string) []float64 {
	if len(candidateTexts) == 0 {
		return []float64{}
	}

	if !s.enabled || s.embedder == nil {
		return s.fallback(baseText, candidateTexts)
	}

	queryVecs, err := s.embedder.Embed(ctx, []string{baseText}, embed.KindQuery)
	if err != nil {
		s.logger.Warn("text signal degraded to keyword overlap",
			slog.String("stage", "query"),
			slog.String("error", err.Error()))
		return s.fallback(baseText, candidateTexts)
	}

	passageVecs, err := s.embedder.Embed(ctx, candidateTexts, embed.KindPassage)
	if err != nil {
		s.logger.Warn("text signal degraded to keyword overlap",
			slog.String("stage", "passages"),
			slog.String("error", err.Error()))
		return s.fallback(baseText, candidateTexts)
	}

	query := queryVecs[0]
	scores := make([]float64, len(candidateTexts))
	for i, passage := range passageVecs {
		// Map cosine similarity [-1, 1] to [0, 1].
		scores[i] = clamp01((Cosine(query, passage) + 1) / 2)
	}
	return scores
}

// fallback scores the whole batch with token-set Jaccard overlap.
func (s *TextScorer) fallback(baseText string, candidateTexts []string) []float64 {
	baseTokens := tokenSet(baseText)
	scores := make([]float64, len(candidateTexts))
	for i, text := range candidateTexts {
		scores[i] = Jaccard(baseTokens, tokenSet(text))
	}
	return scores
}

// Cosine computes the cosine similarity between two vectors.
// Mismatched lengths or zero vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Jaccard computes |intersection| / |union| between two token sets.
// Either set being empty yields 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// tokenSet splits text on whitespace into a set of lowercased tokens.
func tokenSet(text string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// clamp01 clamps v to the [0, 1] range.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
