package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/notify"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/trend"
)

// Dispatcher owns background execution: a fire-and-forget ingestion queue
// drained by a single worker, and a cron schedule that refreshes subscribed
// queries and notifies their recipients.
type Dispatcher struct {
	store    store.Store
	pipeline *trend.Pipeline
	notify   *notify.Manager
	jobs     chan string
	cronSpec string
	baseURL  string
}

// New creates a dispatcher. cronSpec may be empty to disable refresh sweeps.
func New(s store.Store, pipeline *trend.Pipeline, nm *notify.Manager, cronSpec, baseURL string) *Dispatcher {
	return &Dispatcher{
		store:    s,
		pipeline: pipeline,
		notify:   nm,
		jobs:     make(chan string, 64),
		cronSpec: cronSpec,
		baseURL:  baseURL,
	}
}

// Enqueue schedules ingestion for a query. Never blocks; reports whether the
// job was accepted. A full queue rejects the job so the caller can surface
// the overload instead of leaving the query stuck pending.
func (d *Dispatcher) Enqueue(queryID string) bool {
	select {
	case d.jobs <- queryID:
		return true
	default:
		slog.Warn("dispatch queue full, rejecting job", "query_id", queryID)
		return false
	}
}

// Run drains the job queue and starts the refresh schedule. Blocks until ctx
// is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	c := cron.New()
	if d.cronSpec != "" {
		_, err := c.AddFunc(d.cronSpec, func() { d.RefreshSweep(context.Background()) })
		if err != nil {
			return fmt.Errorf("schedule refresh sweep %q: %w", d.cronSpec, err)
		}
		c.Start()
		defer c.Stop()
		slog.Info("refresh sweeps scheduled", "cron", d.cronSpec)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped")
			return ctx.Err()
		case queryID := <-d.jobs:
			if _, err := d.pipeline.Ingest(ctx, queryID); err != nil {
				slog.Error("ingestion failed", "query_id", queryID, "error", err)
			}
		}
	}
}

// RefreshSweep re-ingests every query with at least one active subscription
// and notifies its subscribers with the new version.
func (d *Dispatcher) RefreshSweep(ctx context.Context) {
	subs, err := d.store.ListActiveSubscriptions(ctx)
	if err != nil {
		slog.Error("list subscriptions for sweep", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	byQuery := make(map[string][]store.Subscription)
	for _, sub := range subs {
		byQuery[sub.QueryID] = append(byQuery[sub.QueryID], sub)
	}
	slog.Info("refresh sweep starting", "queries", len(byQuery), "subscriptions", len(subs))

	for queryID, recipients := range byQuery {
		version, err := d.pipeline.Refresh(ctx, queryID)
		if err != nil {
			slog.Error("refresh failed", "query_id", queryID, "error", err)
			continue
		}
		if version == 0 {
			// Query was not in a refreshable state.
			continue
		}

		if !d.notify.HasNotifiers() {
			continue
		}
		d.notifySubscribers(ctx, queryID, version, recipients)
	}
}

func (d *Dispatcher) notifySubscribers(ctx context.Context, queryID string, version int, recipients []store.Subscription) {
	q, err := d.store.GetQuery(ctx, queryID)
	if err != nil {
		slog.Error("load query for notification", "query_id", queryID, "error", err)
		return
	}
	results, err := d.store.ListResults(ctx, queryID, version)
	if err != nil {
		slog.Error("load results for notification", "query_id", queryID, "error", err)
		return
	}

	for _, sub := range recipients {
		n := &notify.Notification{
			Query:     *q,
			Version:   version,
			Results:   results,
			Recipient: sub.Email,
			DetailURL: fmt.Sprintf("%s/api/v1/queries/%s/results?version=%d",
				d.baseURL, queryID, version),
			UnsubscribeURL: fmt.Sprintf("%s/api/v1/queries/%s/subscriptions/%s",
				d.baseURL, queryID, sub.ID),
		}
		if err := d.notify.Broadcast(ctx, n); err != nil {
			slog.Error("notification failed", "query_id", queryID, "recipient", sub.Email, "error", err)
		}
	}
}
