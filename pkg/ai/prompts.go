package ai

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
)

const GraphExtractionPrompt = `You are a highly advanced Information Extraction (IE) system.
Your task is to read a set of news articles on a single overarching topic, and construct a Knowledge Graph in JSON format matching our strict output schema.

The Knowledge Graph consists of:
1. ` + "`branches`" + `: The overarching thematic timelines. e.g. "Main Trunk", "Regulatory Action", "Market Impact"
2. ` + "`nodes`" + `: The individual pieces of knowledge. Types can be:
   - "event": Something that happened.
   - "entity": A person, organization, place, or concept.
   - "data": A specific metric, claim, or statement.
3. ` + "`links`" + `: Directed edges between nodes representing logical relationships. Valid labels:
   - "causes", "triggers", "leads to", "orchestrated by", "part of", "responds to", "demands resignation of", "impacts"

IMPORTANT: You must output ONLY RAW JSON. Do not include markdown code block formatting like ` + "```json ... ```" + `.
Your output must be immediately parseable as JSON.

OUTPUT SCHEMA (The exact structure you MUST follow):
{
  "branches": [
    { "id": "b1", "name": "Main Trunk: [Topic Name]" },
    { "id": "b2", "name": "[Sub-Branch Name]" }
  ],
  "nodes": [
    {
      "id": "n1",
      "type": "event|entity|data",
      "title": "Short succinct title",
      "summary": "Detailed summary explaining what this node means and why it's important.",
      "date": "YYYY-MM-DD",
      "sources": [
        { "name": "Source Name from the article", "slant": "neutral|left-leaning|right-leaning", "excerpt": "Relevant quote from the article" }
      ],
      "branchId": "b1"
    }
  ],
  "links": [
    { "source": "n1", "target": "n2", "label": "causes" }
  ]
}
`

const (
	DepthPromptCore = "Level 1 (Core): Extract ONLY the central main event and 1-2 key entities. Max 3-5 nodes. Keep it extremely simple representing only the root of the story."
	DepthPromptSub  = "Level 2 (Sub-events): Extract the core event and its immediate, directly-triggered sub-events. Max 6-10 nodes. Form a clear 2-tier causal chain."
	DepthPromptDeep = "Level 3 (Deep Chain): Extract the core event, direct sub-events, and long-tail grandchild effects. Max 12-18 nodes. Build a comprehensive 3-tier web of causes and impacts."
)

// DepthPrompt returns the node budget instruction for depth. Anything other
// than 1 or 2 gets the deepest tier.
func DepthPrompt(depth int) string {
	switch depth {
	case 1:
		return DepthPromptCore
	case 2:
		return DepthPromptSub
	default:
		return DepthPromptDeep
	}
}

// ExtractionSystemPrompt combines the schema instructions with the tier for
// depth.
func ExtractionSystemPrompt(depth int) string {
	return GraphExtractionPrompt + "\nInstructions for nodes & links:\n- " + DepthPrompt(depth)
}

// ExtractionInput renders the topic and its articles as the user message of
// an extraction request. Articles are numbered from 1.
func ExtractionInput(topic string, articles []common.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TOPIC: %s\n\nARTICLES:\n", topic)
	for i, a := range articles {
		fmt.Fprintf(&b, "---\n Article %d Title: %s\n Source: %s\n Date: %s\n", i+1, a.Title, a.SourceName, a.PublishedAt)
	}
	return b.String()
}
