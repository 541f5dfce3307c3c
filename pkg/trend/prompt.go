package trend

import "fmt"

const promptTemplate = `What are the trending topics among %s in the %s sector within %s during %s?

Return exactly 5 candidate trends.

Respond with a single JSON object using exactly this schema:
{
  "results": [
    {
      "topic": "short title of the trend",
      "summary": "2-3 sentence summary",
      "sources": {
        "urls": ["https://..."],
        "snippets": ["short quote or excerpt per url"],
        "dates": ["ISO-8601 publication date per url"],
        "engagement": [{"likes": 0, "shares": 0, "comments": 0}]
      },
      "suggested_angles": ["content angle a writer could take"]
    }
  ]
}

The urls, snippets, dates and engagement arrays are parallel (same length, same order).
The engagement array is optional; omit it when counts are unknown.
Return ONLY the JSON object. No commentary, no markdown, nothing outside the JSON.`

// BuildPrompt turns the four query parameters into the natural-language
// instruction sent upstream. Pure text generation: any inputs are accepted,
// empty ones just degrade the prompt.
func BuildPrompt(industry, region, persona, dateRange string) string {
	return fmt.Sprintf(promptTemplate, persona, industry, region, dateRange)
}
