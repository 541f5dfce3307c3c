package trend

import (
	"encoding/json"
	"strconv"
)

// Payload is the structured reply recovered from the upstream service.
type Payload struct {
	Results []Candidate `json:"results"`
}

// Candidate is one trend entry prior to scoring. The three optional score
// fields, when present in the upstream payload, override local computation.
type Candidate struct {
	Topic           string    `json:"topic"`
	Summary         string    `json:"summary"`
	Sources         SourceBag `json:"sources"`
	SuggestedAngles []string  `json:"suggested_angles"`
	Engagement      *float64  `json:"engagement,omitempty"`
	Freshness       *float64  `json:"freshness,omitempty"`
	Relevance       *float64  `json:"relevance,omitempty"`
}

// EngagementCounter holds per-source interaction counts.
type EngagementCounter struct {
	Likes    float64 `json:"likes"`
	Shares   float64 `json:"shares"`
	Comments float64 `json:"comments"`
}

// SourceBag is the provenance container backing a candidate. The four lists
// are intended to be parallel, but nothing downstream may assume that: the
// upstream payload is untrusted, so decoding tolerates missing keys,
// mismatched lengths and wrong-typed values instead of failing.
type SourceBag struct {
	URLs       []string            `json:"urls"`
	Snippets   []string            `json:"snippets"`
	Dates      []string            `json:"dates"`
	Engagement []EngagementCounter `json:"engagement,omitempty"`
}

// UnmarshalJSON decodes the bag defensively. A non-object bag or a
// wrong-typed field degrades to empty rather than erroring.
func (b *SourceBag) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}

	b.URLs = looseStrings(m["urls"])
	b.Snippets = looseStrings(m["snippets"])
	b.Dates = looseStrings(m["dates"])
	b.Engagement = looseCounters(m["engagement"])
	return nil
}

// looseStrings accepts a JSON array of mixed values, a bare string, or
// anything else (yielding nil). Non-string array elements are stringified
// when numeric and skipped otherwise.
func looseStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err == nil && single != "" {
			return []string{single}
		}
		return nil
	}

	var out []string
	for _, el := range list {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(el, &n); err == nil {
			out = append(out, strconv.FormatFloat(n, 'f', -1, 64))
		}
	}
	return out
}

// looseCounters accepts an array of engagement objects whose counts may
// arrive as numbers or numeric strings. Malformed entries decode to zeros.
func looseCounters(raw json.RawMessage) []EngagementCounter {
	if len(raw) == 0 {
		return nil
	}

	var list []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}

	out := make([]EngagementCounter, 0, len(list))
	for _, m := range list {
		out = append(out, EngagementCounter{
			Likes:    looseNumber(m["likes"]),
			Shares:   looseNumber(m["shares"]),
			Comments: looseNumber(m["comments"]),
		})
	}
	return out
}

func looseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed
		}
	}
	return 0
}
