// Package workflow assembles the construction stages into an executable graph
// and drives runs over it.
package workflow

import (
	"fmt"
	"strings"
)

// Stage identifiers. These are the graph nodes; StageFailed collects every
// fatal transition.
const (
	StageRequirements   = "requirements_analysis"
	StageDesign         = "design"
	StageStructure      = "structure_proposal"
	StageCodeGeneration = "code_generation"
	StageVerification   = "completeness_verification"
	StageDocumentation  = "documentation"
	StageFailed         = "failed"
)

// Edge endpoint markers. Start and done are not nodes; they mark where runs
// enter and leave the graph.
const (
	MarkerStart = "start"
	MarkerDone  = "done"
)

// EdgeKind classifies a transition.
type EdgeKind string

const (
	// EdgeForward is the normal progression between stages.
	EdgeForward EdgeKind = "forward"
	// EdgeLoop is the verification self-loop.
	EdgeLoop EdgeKind = "loop"
	// EdgeFailure is a fatal transition into the failed node.
	EdgeFailure EdgeKind = "failure"
	// EdgeExit leaves the graph through the done marker. Both the
	// documentation stage and the failed node exit this way; the kind keeps
	// failed exits from reading as normal progression.
	EdgeExit EdgeKind = "exit"
)

// Edge is one transition of the workflow graph.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is the static workflow topology, independent of any run.
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// workStages lists the work stages in execution order.
var workStages = []string{
	StageRequirements,
	StageDesign,
	StageStructure,
	StageCodeGeneration,
	StageVerification,
	StageDocumentation,
}

// BuildGraph constructs the workflow topology. Pure; no collaborator or
// sandbox access.
func BuildGraph() *Graph {
	g := &Graph{
		Nodes: append(append([]string{}, workStages...), StageFailed),
	}

	g.Edges = append(g.Edges, Edge{From: MarkerStart, To: StageRequirements, Kind: EdgeForward})
	for i := 0; i < len(workStages)-1; i++ {
		g.Edges = append(g.Edges, Edge{From: workStages[i], To: workStages[i+1], Kind: EdgeForward})
	}
	g.Edges = append(g.Edges, Edge{From: StageVerification, To: StageVerification, Kind: EdgeLoop})
	g.Edges = append(g.Edges, Edge{From: StageDocumentation, To: MarkerDone, Kind: EdgeExit})

	for _, s := range workStages {
		g.Edges = append(g.Edges, Edge{From: s, To: StageFailed, Kind: EdgeFailure})
	}
	g.Edges = append(g.Edges, Edge{From: StageFailed, To: MarkerDone, Kind: EdgeExit})

	return g
}

// HasNode reports whether name is a node of the graph.
func (g *Graph) HasNode(name string) bool {
	for _, n := range g.Nodes {
		if n == name {
			return true
		}
	}
	return false
}

// Mermaid renders the graph as a mermaid flowchart.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString(fmt.Sprintf("    %s([%s])\n", MarkerStart, MarkerStart))
	b.WriteString(fmt.Sprintf("    %s([%s])\n", MarkerDone, MarkerDone))
	for _, n := range g.Nodes {
		b.WriteString(fmt.Sprintf("    %s[%s]\n", n, n))
	}
	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeFailure:
			b.WriteString(fmt.Sprintf("    %s -.-> %s\n", e.From, e.To))
		case EdgeLoop:
			b.WriteString(fmt.Sprintf("    %s -->|repair| %s\n", e.From, e.To))
		case EdgeExit:
			b.WriteString(fmt.Sprintf("    %s -->|exit| %s\n", e.From, e.To))
		default:
			b.WriteString(fmt.Sprintf("    %s --> %s\n", e.From, e.To))
		}
	}
	return b.String()
}
