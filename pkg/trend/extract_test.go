package trend

import (
	"testing"
)

func TestExtractWellFormed(t *testing.T) {
	raw := `{"results": [{"topic": "AI Tutors", "summary": "Adaptive tutors on the rise.",
		"sources": {"urls": ["https://example.com/a"], "snippets": ["quote"], "dates": ["2026-08-20"]},
		"suggested_angles": ["classroom impact"]}]}`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected well-formed JSON to extract")
	}
	if len(p.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(p.Results))
	}

	c := p.Results[0]
	if c.Topic != "AI Tutors" {
		t.Errorf("topic = %q", c.Topic)
	}
	if len(c.Sources.URLs) != 1 || c.Sources.URLs[0] != "https://example.com/a" {
		t.Errorf("urls = %v", c.Sources.URLs)
	}
	if len(c.SuggestedAngles) != 1 {
		t.Errorf("angles = %v", c.SuggestedAngles)
	}
}

func TestExtractTrailingCommas(t *testing.T) {
	raw := `{"results": [{"topic": "A", "summary": "s", "sources": {"urls": ["u",],},},]}`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected trailing-comma JSON to be repaired")
	}
	if len(p.Results) != 1 || p.Results[0].Topic != "A" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestExtractSmartQuotes(t *testing.T) {
	raw := "{“results”: [{“topic”: “Quantum Leap”, “summary”: “s”}]}"

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected smart-quoted JSON to be repaired")
	}
	if p.Results[0].Topic != "Quantum Leap" {
		t.Errorf("topic = %q", p.Results[0].Topic)
	}
}

func TestExtractUnderscoreNumerals(t *testing.T) {
	raw := `{"results": [{"topic": "A", "summary": "s",
		"sources": {"urls": ["u"], "engagement": [{"likes": 1_000_000, "shares": 2_500}]}}]}`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected underscore numerals to be repaired")
	}
	eng := p.Results[0].Sources.Engagement
	if len(eng) != 1 || eng[0].Likes != 1000000 || eng[0].Shares != 2500 {
		t.Errorf("engagement = %+v", eng)
	}
}

func TestExtractMarkdownFenced(t *testing.T) {
	raw := "```json\n{\"results\": [{\"topic\": \"A\", \"summary\": \"s\"}]}\n```"

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected fenced JSON to be recovered")
	}
	if len(p.Results) != 1 {
		t.Fatalf("results = %+v", p.Results)
	}
}

func TestExtractObjectBuriedInProse(t *testing.T) {
	raw := `Sure! Here are the trends you asked for:

{"results": [{"topic": "Edge AI", "summary": "s"}, {"topic": "RAG", "summary": "s"}]}

Let me know if you need anything else.`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected embedded object to be recovered")
	}
	if len(p.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(p.Results))
	}
}

func TestExtractBareArray(t *testing.T) {
	raw := `Here you go: [{"topic": "A", "summary": "s"}, {"topic": "B", "summary": "s"}]`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected bare array to be wrapped and recovered")
	}
	if len(p.Results) != 2 || p.Results[1].Topic != "B" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestExtractPureProse(t *testing.T) {
	p, ok := Extract("I could not find any trends for that request, sorry.")
	if ok || p != nil {
		t.Fatal("pure prose must yield the no-result sentinel")
	}
}

func TestExtractEmptyResults(t *testing.T) {
	p, ok := Extract(`{"results": []}`)
	if !ok {
		t.Fatal("an explicit empty results array is a valid payload")
	}
	if len(p.Results) != 0 {
		t.Fatalf("expected empty results, got %+v", p.Results)
	}
}

func TestSourceBagToleratesMalformedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing keys", `{"results": [{"topic": "A", "summary": "s", "sources": {}}]}`},
		{"non-list urls", `{"results": [{"topic": "A", "summary": "s", "sources": {"urls": "https://one.example"}}]}`},
		{"non-object bag", `{"results": [{"topic": "A", "summary": "s", "sources": "nope"}]}`},
		{"mixed-type dates", `{"results": [{"topic": "A", "summary": "s", "sources": {"dates": ["2026-01-01", 42, null]}}]}`},
		{"string counters", `{"results": [{"topic": "A", "summary": "s", "sources": {"engagement": [{"likes": "12", "shares": true}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Extract(tt.raw)
			if !ok {
				t.Fatal("malformed sources bag must not sink the whole payload")
			}
			if len(p.Results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(p.Results))
			}
		})
	}
}

func TestSourceBagLooseValues(t *testing.T) {
	raw := `{"results": [{"topic": "A", "summary": "s",
		"sources": {"urls": "https://one.example", "dates": ["2026-01-01", 42],
		"engagement": [{"likes": "12", "comments": 3}]}}]}`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}

	bag := p.Results[0].Sources
	if len(bag.URLs) != 1 || bag.URLs[0] != "https://one.example" {
		t.Errorf("bare string url should be promoted to a list, got %v", bag.URLs)
	}
	if len(bag.Dates) != 2 {
		t.Errorf("numeric date entries should be stringified, got %v", bag.Dates)
	}
	if len(bag.Engagement) != 1 || bag.Engagement[0].Likes != 12 || bag.Engagement[0].Comments != 3 {
		t.Errorf("engagement = %+v", bag.Engagement)
	}
}

func TestExtractSuppliedScoresOverride(t *testing.T) {
	raw := `{"results": [{"topic": "A", "summary": "s", "engagement": 77.5, "freshness": 12, "relevance": 90}]}`

	p, ok := Extract(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}

	c := p.Results[0]
	if c.Engagement == nil || *c.Engagement != 77.5 {
		t.Errorf("engagement = %v", c.Engagement)
	}
	if c.Freshness == nil || *c.Freshness != 12 {
		t.Errorf("freshness = %v", c.Freshness)
	}
	if c.Relevance == nil || *c.Relevance != 90 {
		t.Errorf("relevance = %v", c.Relevance)
	}
}
