package dispatch

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/notify"
	"github.com/sp18-himanshu-chauhan2/trendsage/pkg/trend"
)

type stubFetcher struct {
	reply string
	calls int
}

func (f *stubFetcher) FetchTrends(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.reply, nil
}

type captureNotifier struct {
	sent []*notify.Notification
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, n *notify.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

const sweepReply = `{"results": [{"topic": "Edge AI", "summary": "On-device models.",
	"sources": {"urls": ["https://example.com/edge"]}}]}`

func newTestDispatcher(t *testing.T, nm *notify.Manager) (*Dispatcher, *store.SQLiteStore, *stubFetcher) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fetcher := &stubFetcher{reply: sweepReply}
	pipeline := trend.NewPipeline(db, fetcher, trend.NewScorer(nil), trend.DefaultWeights, 1, time.Millisecond)
	return New(db, pipeline, nm, "", "http://127.0.0.1:8080"), db, fetcher
}

func seedQuery(t *testing.T, db store.Store, status store.QueryStatus) *store.TrendQuery {
	t.Helper()
	q := &store.TrendQuery{
		ID:        uuid.NewString(),
		Industry:  "DevTools",
		Region:    "US",
		Persona:   "engineers",
		DateRange: "last_week",
		Status:    status,
	}
	if err := db.CreateQuery(context.Background(), q); err != nil {
		t.Fatalf("seed query: %v", err)
	}
	return q
}

func subscribe(t *testing.T, db store.Store, queryID, email string) *store.Subscription {
	t.Helper()
	sub := &store.Subscription{ID: uuid.NewString(), QueryID: queryID, Email: email, Active: true}
	if err := db.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	d, _, _ := newTestDispatcher(t, notify.NewManager(nil))

	// No worker is draining, so the buffer fills up.
	for i := 0; i < 64; i++ {
		if !d.Enqueue(uuid.NewString()) {
			t.Fatalf("enqueue %d rejected before the buffer filled", i)
		}
	}
	if d.Enqueue(uuid.NewString()) {
		t.Error("enqueue accepted with a full buffer")
	}
}

func TestRunDrainsEnqueuedJobs(t *testing.T) {
	d, db, _ := newTestDispatcher(t, notify.NewManager(nil))
	q := seedQuery(t, db, store.StatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	if !d.Enqueue(q.ID) {
		t.Fatal("enqueue rejected with an empty buffer")
	}

	deadline := time.After(5 * time.Second)
	for {
		got, err := db.GetQuery(context.Background(), q.ID)
		if err != nil {
			t.Fatalf("get query: %v", err)
		}
		if got.Status == store.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("query never completed, status %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRefreshSweepNotifiesSubscribers(t *testing.T) {
	capture := &captureNotifier{}
	d, db, _ := newTestDispatcher(t, notify.NewManager([]notify.Notifier{capture}))
	ctx := context.Background()

	q := seedQuery(t, db, store.StatusPending)
	sub := subscribe(t, db, q.ID, "reader@example.com")

	// First ingestion establishes version 1 so the sweep can refresh.
	if _, err := d.pipeline.Ingest(ctx, q.ID); err != nil {
		t.Fatalf("initial ingest: %v", err)
	}

	d.RefreshSweep(ctx)

	if len(capture.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(capture.sent))
	}
	n := capture.sent[0]
	if n.Recipient != "reader@example.com" {
		t.Errorf("recipient = %s", n.Recipient)
	}
	if n.Version != 2 {
		t.Errorf("version = %d, want 2", n.Version)
	}
	if len(n.Results) != 1 || n.Results[0].Topic != "Edge AI" {
		t.Errorf("results = %+v", n.Results)
	}
	if !strings.Contains(n.DetailURL, q.ID) || !strings.HasSuffix(n.DetailURL, "version=2") {
		t.Errorf("detail url = %s", n.DetailURL)
	}
	if !strings.Contains(n.UnsubscribeURL, sub.ID) {
		t.Errorf("unsubscribe url = %s", n.UnsubscribeURL)
	}
}

func TestRefreshSweepSkipsUnrefreshableQueries(t *testing.T) {
	capture := &captureNotifier{}
	d, db, fetcher := newTestDispatcher(t, notify.NewManager([]notify.Notifier{capture}))
	ctx := context.Background()

	q := seedQuery(t, db, store.StatusFailed)
	subscribe(t, db, q.ID, "reader@example.com")

	d.RefreshSweep(ctx)

	if fetcher.calls != 0 {
		t.Errorf("failed query was fetched during sweep")
	}
	if len(capture.sent) != 0 {
		t.Errorf("failed query produced %d notifications", len(capture.sent))
	}
}

func TestRefreshSweepNoSubscriptions(t *testing.T) {
	capture := &captureNotifier{}
	d, db, fetcher := newTestDispatcher(t, notify.NewManager([]notify.Notifier{capture}))
	ctx := context.Background()

	q := seedQuery(t, db, store.StatusPending)
	if _, err := d.pipeline.Ingest(ctx, q.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	calls := fetcher.calls

	d.RefreshSweep(ctx)

	if fetcher.calls != calls {
		t.Errorf("sweep refreshed a query without subscribers")
	}
	if len(capture.sent) != 0 {
		t.Errorf("sweep sent %d notifications without subscribers", len(capture.sent))
	}
}
