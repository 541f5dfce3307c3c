package trend

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Weights combines the three sub-scores into a final score.
type Weights struct {
	Engagement float64
	Freshness  float64
	Relevance  float64
}

// DefaultWeights is the production weighting.
var DefaultWeights = Weights{Engagement: 0.3, Freshness: 0.4, Relevance: 0.3}

const (
	likeWeight    = 0.5
	shareWeight   = 1.0
	commentWeight = 0.8

	urlCoverageStep = 20.0
	decayDays       = 7.0
)

// Scorer computes the three per-candidate sub-scores. The optional embedder
// is an explicit resource constructed once at process start; when it is nil
// (or fails) relevance falls back to token overlap.
type Scorer struct {
	embedder Embedder
	now      func() time.Time
}

// NewScorer creates a Scorer. embedder may be nil.
func NewScorer(embedder Embedder) *Scorer {
	return &Scorer{embedder: embedder, now: time.Now}
}

// Engagement scores 0-100 from explicit interaction counters, falling back
// to URL coverage when no counters are present.
func (s *Scorer) Engagement(bag SourceBag) float64 {
	sum := 0.0
	for _, c := range bag.Engagement {
		sum += c.Likes*likeWeight + c.Shares*shareWeight + c.Comments*commentWeight
	}
	if sum > 0 {
		return clamp100(sum)
	}
	return math.Min(100, urlCoverageStep*float64(len(bag.URLs)))
}

// Freshness scores 0-100 by exponential decay from the most recent parseable
// source date. Unparseable dates are skipped; with none at all, fallback (the
// query's creation time) is used instead.
func (s *Scorer) Freshness(bag SourceBag, fallback time.Time) float64 {
	ref := time.Time{}
	for _, d := range bag.Dates {
		t, err := dateparse.ParseAny(d)
		if err != nil {
			continue
		}
		if t.After(ref) {
			ref = t
		}
	}
	if ref.IsZero() {
		ref = fallback
	}
	if ref.IsZero() {
		ref = s.now()
	}

	ageDays := s.now().Sub(ref).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return round2(100 * math.Exp(-ageDays/decayDays))
}

// Relevance scores 0-100 semantic closeness between the query's descriptive
// text and the candidate's own text. Embedding cosine similarity when an
// embedder is available, token overlap otherwise. An empty query text always
// scores 0.
func (s *Scorer) Relevance(ctx context.Context, queryText, candidateText string) float64 {
	if strings.TrimSpace(queryText) == "" {
		return 0
	}

	if s.embedder != nil {
		score, err := s.embedRelevance(ctx, queryText, candidateText)
		if err == nil {
			return score
		}
		slog.Warn("embedding failed, falling back to token overlap", "error", err)
	}

	return round2(jaccard(tokenize(queryText), tokenize(candidateText)) * 100)
}

func (s *Scorer) embedRelevance(ctx context.Context, queryText, candidateText string) (float64, error) {
	qv, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return 0, err
	}
	cv, err := s.embedder.Embed(ctx, candidateText)
	if err != nil {
		return 0, err
	}
	return round2(math.Max(0, cosine(qv, cv)*100)), nil
}

// Final combines resolved sub-scores using w, rounded to 2 decimals.
func Final(e, f, r float64, w Weights) float64 {
	if w.Engagement+w.Freshness+w.Relevance == 0 {
		w = DefaultWeights
	}
	return round2(e*w.Engagement + f*w.Freshness + r*w.Relevance)
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenize lower-cases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// jaccard returns the Jaccard index of two token lists.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
