package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/ranking"
	"github.com/onnwee/reclaim/internal/signal"
)

// DefaultMinScore is the score floor below which candidate pairs are not
// persisted or returned.
const DefaultMinScore = 0.3

// DefaultTopK is the maximum number of matches persisted per run.
const DefaultTopK = 10

// DefaultMatchRetention is how long non-claimed matches are kept before
// cleanup removes them.
const DefaultMatchRetention = 90 * 24 * time.Hour

// ErrNoQueue is returned by TriggerMatching when no job queue is configured.
var ErrNoQueue = errors.New("no matching job queue configured")

// Enqueuer submits matching jobs for asynchronous processing. EnqueueMatchJob
// returns false without error when a job for the item is already queued or
// was queued too recently (debounce).
type Enqueuer interface {
	EnqueueMatchJob(ctx context.Context, itemID string) (bool, error)
}

// Config holds the tunable parameters of the matching pipeline.
type Config struct {
	// MinScore is the persistence floor. Zero or negative uses the default.
	MinScore float64

	// TopK caps persisted matches per run. Zero or negative uses the default.
	TopK int

	// TextEnabled turns on the semantic text similarity signal.
	TextEnabled bool

	// ImageEnabled turns on the perceptual image similarity signal.
	ImageEnabled bool

	// Logger for pipeline activity. Nil uses slog.Default.
	Logger *slog.Logger
}

// Orchestrator runs the full matching pipeline for an item: retrieve
// candidates, score every signal concurrently, fuse the scores, rank, and
// persist the surviving pairs.
type Orchestrator struct {
	items     item.Repository
	matches   match.Repository
	retriever *CandidateRetriever
	enqueuer  Enqueuer

	text     *signal.TextScorer
	image    signal.ImageScorer
	geo      signal.GeoScorer
	timeSig  signal.TimeScorer
	metadata signal.MetadataScorer

	weights *ranking.Weights
	config  Config
	logger  *slog.Logger
}

// NewOrchestrator wires a matching pipeline. The text scorer and enqueuer
// may be nil; a nil text scorer disables the text signal regardless of the
// feature flag, and a nil enqueuer makes TriggerMatching return ErrNoQueue.
func NewOrchestrator(
	items item.Repository,
	matches match.Repository,
	retriever *CandidateRetriever,
	text *signal.TextScorer,
	weights *ranking.Weights,
	config Config,
) *Orchestrator {
	if config.MinScore <= 0 {
		config.MinScore = DefaultMinScore
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if weights == nil {
		weights = ranking.DefaultWeights()
	}

	return &Orchestrator{
		items:     items,
		matches:   matches,
		retriever: retriever,
		text:      text,
		weights:   weights,
		config:    config,
		logger:    config.Logger,
	}
}

// SetEnqueuer attaches the asynchronous job queue used by TriggerMatching.
func (o *Orchestrator) SetEnqueuer(e Enqueuer) {
	o.enqueuer = e
}

// SetGeoScorer overrides the geographic scorer, typically to change the
// falloff radius.
func (o *Orchestrator) SetGeoScorer(s signal.GeoScorer) {
	o.geo = s
}

// SetTimeScorer overrides the temporal scorer, typically to change the
// decay window.
func (o *Orchestrator) SetTimeScorer(s signal.TimeScorer) {
	o.timeSig = s
}

// scoredCandidate pairs a candidate with its fused score during ranking.
type scoredCandidate struct {
	candidate     *item.Item
	score         float64
	breakdown     match.Breakdown
	distanceKM    *float64
	timeDiffHours float64
}

// FindMatches runs the matching pipeline for the item and returns the
// persisted matches, highest score first. Returns item.ErrItemNotFound for
// an unknown id. Nothing is persisted until the full candidate pool has
// been scored and ranked, so a failure mid-scoring leaves no partial state.
func (o *Orchestrator) FindMatches(ctx context.Context, itemID string) ([]*match.Match, error) {
	return o.Search(ctx, itemID, 0, 0)
}

// Search is FindMatches with per-call overrides. A limit <= 0 or
// minScore <= 0 falls back to the configured defaults.
func (o *Orchestrator) Search(ctx context.Context, itemID string, limit int, minScore float64) ([]*match.Match, error) {
	start := time.Now()

	if limit <= 0 {
		limit = o.config.TopK
	}
	if minScore <= 0 {
		minScore = o.config.MinScore
	}

	base, err := o.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	candidates, err := o.retriever.Retrieve(ctx, base)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		o.logger.Info("no candidates for item",
			slog.String("item_id", itemID),
			slog.String("status", string(base.Status)))
		return []*match.Match{}, nil
	}

	scored, err := o.scorePool(ctx, base, candidates)
	if err != nil {
		return nil, err
	}

	ranked := o.rank(scored, minScore, limit)

	matches, err := o.persist(ctx, base, ranked)
	if err != nil {
		return nil, err
	}

	o.logger.Info("matching run completed",
		slog.String("item_id", itemID),
		slog.Int("candidates", len(candidates)),
		slog.Int("matches", len(matches)),
		slog.Duration("duration", time.Since(start)))
	return matches, nil
}

// scorePool computes every signal for the full candidate pool. Each signal
// runs in its own goroutine writing to its own slice, so no locking is
// needed; the text signal is the only one doing network I/O and scores the
// whole pool in a single batched call.
func (o *Orchestrator) scorePool(ctx context.Context, base *item.Item, candidates []*item.Item) ([]scoredCandidate, error) {
	n := len(candidates)

	textScores := make([]float64, n)
	imageScores := make([]float64, n)
	geoScores := make([]float64, n)
	distances := make([]*float64, n)
	timeScores := make([]float64, n)
	timeDiffs := make([]float64, n)
	metaScores := make([]signal.MetadataScores, n)

	var baseAssets []*item.MediaAsset
	candidateAssets := make([][]*item.MediaAsset, n)
	if o.config.ImageEnabled {
		var err error
		baseAssets, err = o.items.MediaForItem(ctx, base.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load media for item %s: %w", base.ID, err)
		}
		for i, c := range candidates {
			candidateAssets[i], err = o.items.MediaForItem(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load media for item %s: %w", c.ID, err)
			}
		}
	}

	textEnabled := o.config.TextEnabled && o.text != nil

	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		if !textEnabled {
			return
		}
		texts := make([]string, n)
		for i, c := range candidates {
			texts[i] = c.SearchText()
		}
		copy(textScores, o.text.Score(ctx, base.SearchText(), texts))
	}()

	go func() {
		defer wg.Done()
		if !o.config.ImageEnabled {
			return
		}
		for i := range candidates {
			imageScores[i] = o.image.Score(baseAssets, candidateAssets[i])
		}
	}()

	go func() {
		defer wg.Done()
		for i, c := range candidates {
			geoScores[i], distances[i] = o.geo.Score(base, c)
		}
	}()

	go func() {
		defer wg.Done()
		for i, c := range candidates {
			timeScores[i], timeDiffs[i] = o.timeSig.Score(base, c)
		}
	}()

	go func() {
		defer wg.Done()
		for i, c := range candidates {
			metaScores[i] = o.metadata.Score(base, c)
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := make([]scoredCandidate, n)
	for i, c := range candidates {
		params := ranking.MatchParams{
			Distance:     geoScores[i],
			Time:         timeScores[i],
			Text:         textScores[i],
			Image:        imageScores[i],
			TextEnabled:  textEnabled,
			ImageEnabled: o.config.ImageEnabled,
		}

		breakdown := match.Breakdown{
			match.SignalDistance: geoScores[i],
			match.SignalTime:     timeScores[i],
		}
		if metaScores[i].Category != nil {
			params.Category = *metaScores[i].Category
			breakdown[match.SignalCategory] = *metaScores[i].Category
		}
		if metaScores[i].Attributes != nil {
			params.Attributes = *metaScores[i].Attributes
			breakdown[match.SignalAttributes] = *metaScores[i].Attributes
		}
		if textEnabled {
			breakdown[match.SignalText] = textScores[i]
		}
		if o.config.ImageEnabled {
			breakdown[match.SignalImage] = imageScores[i]
		}

		scored[i] = scoredCandidate{
			candidate:     c,
			score:         ranking.CompositeScore(params, o.weights),
			breakdown:     breakdown,
			distanceKM:    distances[i],
			timeDiffHours: timeDiffs[i],
		}
	}
	return scored, nil
}

// rank sorts by score descending, drops pairs below the score floor, and
// caps the list at limit. Ties break toward the more recently created
// candidate, then by id for determinism.
func (o *Orchestrator) rank(scored []scoredCandidate, minScore float64, limit int) []scoredCandidate {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ti := scored[i].candidate.CreatedAt
		tj := scored[j].candidate.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return scored[i].candidate.ID < scored[j].candidate.ID
	})

	kept := scored[:0]
	for _, s := range scored {
		if s.score < minScore {
			break
		}
		kept = append(kept, s)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// persist upserts every ranked pair and returns the stored records. The
// lost/found orientation is taken from the item statuses, so both directions
// of a pair collapse onto the same row.
func (o *Orchestrator) persist(ctx context.Context, base *item.Item, ranked []scoredCandidate) ([]*match.Match, error) {
	matches := make([]*match.Match, 0, len(ranked))
	for _, s := range ranked {
		lostID, foundID := base.ID, s.candidate.ID
		if base.Status == item.StatusFound {
			lostID, foundID = s.candidate.ID, base.ID
		}

		diffHours := s.timeDiffHours
		result, err := o.matches.Upsert(ctx, &match.Match{
			LostItemID:    lostID,
			FoundItemID:   foundID,
			ScoreFinal:    s.score,
			Breakdown:     s.breakdown,
			DistanceKM:    s.distanceKM,
			TimeDiffHours: &diffHours,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist match %s/%s: %w", lostID, foundID, err)
		}

		stored, err := o.matches.GetByID(ctx, result.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted match %s: %w", result.ID, err)
		}
		matches = append(matches, stored)
	}
	return matches, nil
}

// TriggerMatching submits an asynchronous matching job for the item.
// Returns true if the job was queued, false if it was debounced because an
// equivalent job is already pending. Returns item.ErrItemNotFound for an
// unknown id and ErrNoQueue when no queue is configured.
func (o *Orchestrator) TriggerMatching(ctx context.Context, itemID string) (bool, error) {
	if o.enqueuer == nil {
		return false, ErrNoQueue
	}
	if _, err := o.items.GetByID(ctx, itemID); err != nil {
		return false, err
	}
	return o.enqueuer.EnqueueMatchJob(ctx, itemID)
}

// ReprocessStats summarizes a batch reprocessing run.
type ReprocessStats struct {
	ItemsProcessed int `json:"items_processed"`
	ItemsFailed    int `json:"items_failed"`
	MatchesStored  int `json:"matches_stored"`
}

// ReprocessAll reruns matching for every active item. A failure on one item
// is logged and counted but never aborts the batch; pairs reachable from
// both sides collapse onto one row through the upsert.
func (o *Orchestrator) ReprocessAll(ctx context.Context) (*ReprocessStats, error) {
	items, err := o.items.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active items: %w", err)
	}

	stats := &ReprocessStats{}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		matches, err := o.FindMatches(ctx, it.ID)
		if err != nil {
			stats.ItemsFailed++
			o.logger.Error("reprocessing failed for item",
				slog.String("item_id", it.ID),
				slog.String("error", err.Error()))
			continue
		}
		stats.ItemsProcessed++
		stats.MatchesStored += len(matches)
	}

	o.logger.Info("reprocessing completed",
		slog.Int("processed", stats.ItemsProcessed),
		slog.Int("failed", stats.ItemsFailed),
		slog.Int("matches", stats.MatchesStored))
	return stats, nil
}

// CleanupOldMatches deletes non-claimed matches last updated longer than
// maxAge ago. Zero or negative maxAge uses the default retention. Returns
// the number of deleted records.
func (o *Orchestrator) CleanupOldMatches(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultMatchRetention
	}
	cutoff := time.Now().Add(-maxAge)

	deleted, err := o.matches.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old matches: %w", err)
	}

	o.logger.Info("match cleanup completed",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}
