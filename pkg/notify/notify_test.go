package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
)

type fakeNotifier struct {
	name string
	err  error
	sent []*Notification
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, n *Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func sampleNotification() *Notification {
	return &Notification{
		Query: store.TrendQuery{
			Industry: "EdTech", Region: "India", Persona: "founders", DateRange: "last_week",
		},
		Version: 3,
		Results: []store.TrendResult{
			{Topic: "AI Tutors", Summary: "Adoption is accelerating.", FinalScore: 81.5},
			{Topic: "Micro Credentials", FinalScore: 64.2},
		},
		Recipient:      "reader@example.com",
		DetailURL:      "http://127.0.0.1:8080/api/v1/queries/q1/results?version=3",
		UnsubscribeURL: "http://127.0.0.1:8080/api/v1/queries/q1/subscriptions/s1",
	}
}

func TestManagerBroadcast(t *testing.T) {
	a := &fakeNotifier{name: "a"}
	b := &fakeNotifier{name: "b"}
	m := NewManager([]Notifier{a, b})

	if !m.HasNotifiers() {
		t.Fatal("HasNotifiers = false with two notifiers")
	}

	n := sampleNotification()
	if err := m.Broadcast(context.Background(), n); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("deliveries a=%d b=%d, want 1 each", len(a.sent), len(b.sent))
	}
}

func TestManagerBroadcastCollectsFailures(t *testing.T) {
	boom := errors.New("smtp down")
	a := &fakeNotifier{name: "a", err: boom}
	b := &fakeNotifier{name: "b"}
	m := NewManager([]Notifier{a, b})

	err := m.Broadcast(context.Background(), sampleNotification())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped smtp failure", err)
	}
	// A failing notifier must not block the others.
	if len(b.sent) != 1 {
		t.Errorf("second notifier deliveries = %d, want 1", len(b.sent))
	}
	if !strings.Contains(err.Error(), "a:") {
		t.Errorf("error %q should name the failing notifier", err)
	}
}

func TestManagerEmpty(t *testing.T) {
	m := NewManager(nil)
	if m.HasNotifiers() {
		t.Error("HasNotifiers = true with no notifiers")
	}
	if err := m.Broadcast(context.Background(), sampleNotification()); err != nil {
		t.Errorf("broadcast with no notifiers: %v", err)
	}
}

func TestRenderBody(t *testing.T) {
	body := renderBody(sampleNotification())

	for _, want := range []string{
		"EdTech / India / founders / last_week (version 3)",
		"1. AI Tutors (score 81.50)",
		"Adoption is accelerating.",
		"2. Micro Credentials (score 64.20)",
		"Full results: http://127.0.0.1:8080/api/v1/queries/q1/results?version=3",
		"Unsubscribe: http://127.0.0.1:8080/api/v1/queries/q1/subscriptions/s1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderBodyEmptyResults(t *testing.T) {
	n := sampleNotification()
	n.Results = nil
	if body := renderBody(n); !strings.Contains(body, "Nothing new was found") {
		t.Errorf("empty batch body:\n%s", body)
	}
}

func TestWebhookSendSignsPayload(t *testing.T) {
	const secret = "hunter2"

	var gotSig string
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wh := NewWebhook(ts.URL, secret)
	if err := wh.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var payload Notification
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Version != 3 || payload.Recipient != "reader@example.com" {
		t.Errorf("payload mismatch: %+v", payload)
	}
}

func TestWebhookSendRejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	wh := NewWebhook(ts.URL, "")
	if err := wh.Send(context.Background(), sampleNotification()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}
