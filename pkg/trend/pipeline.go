package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
)

// Pipeline runs one ingestion unit: prompt, fetch, extract, score, persist.
// It is invoked synchronously once per request and performs no internal
// concurrency; the dispatcher owns queueing and scheduling.
type Pipeline struct {
	store    store.Store
	fetcher  Fetcher
	scorer   *Scorer
	weights  Weights
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

// NewPipeline creates an ingestion pipeline. attempts and backoff control the
// retry policy for timeout-class upstream failures.
func NewPipeline(s store.Store, fetcher Fetcher, scorer *Scorer, weights Weights, attempts int, backoff time.Duration) *Pipeline {
	if weights.Engagement+weights.Freshness+weights.Relevance == 0 {
		weights = DefaultWeights
	}
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Pipeline{
		store:    s,
		fetcher:  fetcher,
		scorer:   scorer,
		weights:  weights,
		attempts: attempts,
		backoff:  backoff,
		now:      time.Now,
	}
}

// Ingest processes one pending query to completion or failure and returns
// the version stamped on this batch. Only pending queries are processed: a
// query in any other state makes this a logged no-op returning version 0.
// An empty extraction is a valid "nothing found" outcome, not a failure.
func (p *Pipeline) Ingest(ctx context.Context, queryID string) (int, error) {
	q, err := p.store.GetQuery(ctx, queryID)
	if err != nil {
		return 0, fmt.Errorf("load query %s: %w", queryID, err)
	}

	claimed, err := p.store.ClaimPending(ctx, q.ID)
	if err != nil {
		return 0, fmt.Errorf("claim query %s: %w", q.ID, err)
	}
	if !claimed {
		slog.Info("query not pending, skipping ingestion", "query_id", q.ID, "status", q.Status)
		return 0, nil
	}

	prompt := BuildPrompt(q.Industry, q.Region, q.Persona, q.DateRange)

	raw, err := p.fetchWithRetry(ctx, prompt)
	if err != nil {
		p.fail(ctx, q.ID)
		return 0, fmt.Errorf("fetch trends for query %s: %w", q.ID, err)
	}

	var candidates []Candidate
	if payload, ok := Extract(raw); ok {
		candidates = payload.Results
	}

	version, err := p.store.MaxVersion(ctx, q.ID)
	if err != nil {
		p.fail(ctx, q.ID)
		return 0, err
	}
	version++

	results := make([]store.TrendResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, p.scoreCandidate(ctx, q, c, version))
	}

	if err := p.store.InsertResults(ctx, results); err != nil {
		p.fail(ctx, q.ID)
		return 0, fmt.Errorf("persist results for query %s: %w", q.ID, err)
	}

	if err := p.store.SetQueryStatus(ctx, q.ID, store.StatusCompleted); err != nil {
		return 0, fmt.Errorf("complete query %s: %w", q.ID, err)
	}

	slog.Info("ingestion completed", "query_id", q.ID, "version", version, "results", len(results))
	return version, nil
}

// Refresh re-runs ingestion for a completed query, producing the next
// version. Queries in any other state are skipped: pending and running ones
// are already owned by an ingestion pass, and failed ones need an explicit
// user retry rather than a silent background one.
func (p *Pipeline) Refresh(ctx context.Context, queryID string) (int, error) {
	q, err := p.store.GetQuery(ctx, queryID)
	if err != nil {
		return 0, fmt.Errorf("load query %s: %w", queryID, err)
	}
	if q.Status != store.StatusCompleted {
		slog.Info("query not completed, skipping refresh", "query_id", q.ID, "status", q.Status)
		return 0, nil
	}

	if err := p.store.SetQueryStatus(ctx, q.ID, store.StatusPending); err != nil {
		return 0, fmt.Errorf("reopen query %s: %w", q.ID, err)
	}
	return p.Ingest(ctx, queryID)
}

// scoreCandidate resolves the three sub-scores (supplied values win over
// computation) and stamps the weighted final score and batch version.
func (p *Pipeline) scoreCandidate(ctx context.Context, q *store.TrendQuery, c Candidate, version int) store.TrendResult {
	queryText := strings.TrimSpace(strings.Join([]string{q.Industry, q.Persona, q.Region, q.DateRange}, " "))
	candidateText := strings.TrimSpace(c.Topic + " " + c.Summary)

	engagement := p.scorer.Engagement(c.Sources)
	if c.Engagement != nil {
		engagement = *c.Engagement
	}
	freshness := p.scorer.Freshness(c.Sources, q.CreatedAt)
	if c.Freshness != nil {
		freshness = *c.Freshness
	}
	relevance := p.scorer.Relevance(ctx, queryText, candidateText)
	if c.Relevance != nil {
		relevance = *c.Relevance
	}

	topic := c.Topic
	if topic == "" {
		topic = "Unknown"
	}

	sourcesJSON, _ := json.Marshal(c.Sources)

	return store.TrendResult{
		ID:              uuid.NewString(),
		QueryID:         q.ID,
		Version:         version,
		Topic:           topic,
		Summary:         c.Summary,
		Sources:         sourcesJSON,
		EngagementScore: engagement,
		FreshnessScore:  freshness,
		RelevanceScore:  relevance,
		FinalScore:      Final(engagement, freshness, relevance, p.weights),
		SuggestedAngles: c.SuggestedAngles,
	}
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		raw, err := p.fetcher.FetchTrends(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		if !isTimeout(err) {
			return "", err
		}
		lastErr = err
		if attempt < p.attempts {
			slog.Warn("upstream timeout, retrying", "attempt", attempt, "backoff", p.backoff)
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("upstream timed out after %d attempts: %w", p.attempts, lastErr)
}

func (p *Pipeline) fail(ctx context.Context, queryID string) {
	if err := p.store.SetQueryStatus(ctx, queryID, store.StatusFailed); err != nil {
		slog.Error("mark query failed", "query_id", queryID, "error", err)
	}
}
