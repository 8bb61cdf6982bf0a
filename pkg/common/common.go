package common

import (
	"fmt"
	"slices"
)

// Article is a single headline returned by a news source. Articles live for
// one request only and are never persisted.
//
// Title is the identity used for deduplication across sources.
type Article struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at"`
	SourceName  string `json:"source_name"`
}

// Graph is the knowledge graph extracted for a topic. It consists of:
//   - Branches: thematic timelines, e.g. "Main Trunk" or "Market Impact"
//   - Nodes: events, entities and data points placed on a branch
//   - Links: directed, labeled edges between nodes
//
// The JSON shape is the public response format and the cached payload format.
type Graph struct {
	Branches []Branch `json:"branches"`
	Nodes    []Node   `json:"nodes"`
	Links    []Link   `json:"links"`
}

// Branch is a thematic timeline.
type Branch struct {
	ID   string `json:"id" jsonschema_description:"Branch identifier such as b1"`
	Name string `json:"name" jsonschema_description:"Branch name, the first branch is the main trunk of the topic"`
}

// Node is a single piece of knowledge on a branch.
type Node struct {
	ID       string       `json:"id" jsonschema_description:"Node identifier such as n1"`
	Type     string       `json:"type" jsonschema:"enum=event,enum=entity,enum=data"`
	Title    string       `json:"title" jsonschema_description:"Short succinct title"`
	Summary  string       `json:"summary" jsonschema_description:"What this node means and why it is important"`
	Date     string       `json:"date" jsonschema_description:"Date in YYYY-MM-DD format"`
	Sources  []NodeSource `json:"sources"`
	BranchID string       `json:"branchId" jsonschema_description:"Identifier of the branch the node belongs to"`
}

// NodeSource attributes a node to an article source.
type NodeSource struct {
	Name    string `json:"name" jsonschema_description:"Source name from the article"`
	Slant   string `json:"slant" jsonschema:"enum=neutral,enum=left-leaning,enum=right-leaning"`
	Excerpt string `json:"excerpt" jsonschema_description:"Relevant quote from the article"`
}

// Link is a directed edge between two nodes.
type Link struct {
	Source string `json:"source" jsonschema_description:"Identifier of the source node"`
	Target string `json:"target" jsonschema_description:"Identifier of the target node"`
	Label  string `json:"label" jsonschema:"enum=causes,enum=triggers,enum=leads to,enum=orchestrated by,enum=part of,enum=responds to,enum=demands resignation of,enum=impacts"`
}

const (
	NodeTypeEvent  = "event"
	NodeTypeEntity = "entity"
	NodeTypeData   = "data"
)

var NodeTypes = []string{NodeTypeEvent, NodeTypeEntity, NodeTypeData}

var Slants = []string{"neutral", "left-leaning", "right-leaning"}

var LinkLabels = []string{
	"causes",
	"triggers",
	"leads to",
	"orchestrated by",
	"part of",
	"responds to",
	"demands resignation of",
	"impacts",
}

// Check reports structural problems in g: unknown enum values, links that
// point at missing nodes and nodes placed on missing branches. It never
// modifies the graph.
func (g *Graph) Check() []string {
	var warnings []string

	branches := make(map[string]struct{}, len(g.Branches))
	for _, b := range g.Branches {
		branches[b.ID] = struct{}{}
	}

	nodes := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodes[n.ID] = struct{}{}

		if !slices.Contains(NodeTypes, n.Type) {
			warnings = append(warnings, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
		if _, ok := branches[n.BranchID]; !ok {
			warnings = append(warnings, fmt.Sprintf("node %q references unknown branch %q", n.ID, n.BranchID))
		}
		for _, s := range n.Sources {
			if s.Slant != "" && !slices.Contains(Slants, s.Slant) {
				warnings = append(warnings, fmt.Sprintf("node %q source %q has unknown slant %q", n.ID, s.Name, s.Slant))
			}
		}
	}

	for i, l := range g.Links {
		if _, ok := nodes[l.Source]; !ok {
			warnings = append(warnings, fmt.Sprintf("link %d has unknown source %q", i, l.Source))
		}
		if _, ok := nodes[l.Target]; !ok {
			warnings = append(warnings, fmt.Sprintf("link %d has unknown target %q", i, l.Target))
		}
		if !slices.Contains(LinkLabels, l.Label) {
			warnings = append(warnings, fmt.Sprintf("link %d has unknown label %q", i, l.Label))
		}
	}

	return warnings
}
