package scenario

import (
	"fmt"
	"sort"
)

// Graph indexes a scenario's nodes by key.
type Graph struct {
	Start string
	nodes map[string]Node
	order []string
}

// NewGraph builds a Graph. An empty start key falls back to the lowest-position node.
func NewGraph(start string, nodes []Node) *Graph {
	sorted := append([]Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	g := &Graph{Start: start, nodes: make(map[string]Node, len(nodes))}
	for _, n := range sorted {
		if _, dup := g.nodes[n.NodeKey]; dup {
			continue
		}
		g.nodes[n.NodeKey] = n
		g.order = append(g.order, n.NodeKey)
	}
	if g.Start == "" && len(g.order) > 0 {
		g.Start = g.order[0]
	}
	return g
}

func (g *Graph) Node(key string) (Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

func (g *Graph) Len() int { return len(g.order) }

// edges returns the outgoing node keys of n. Undecodable bodies have none.
func edges(n Node) []string {
	switch n.NodeType {
	case NodeNarrative:
		b, err := n.Narrative()
		if err != nil || b.Next == "" {
			return nil
		}
		return []string{b.Next}
	case NodeDecision:
		b, err := n.Decision()
		if err != nil {
			return nil
		}
		out := make([]string, 0, len(b.Choices))
		for _, c := range b.Choices {
			if c.NextNode != "" {
				out = append(out, c.NextNode)
			}
		}
		return out
	}
	return nil
}

type WarningKind string

const (
	WarnMissingStart  WarningKind = "missing_start"
	WarnDanglingRef   WarningKind = "dangling_reference"
	WarnUnreachable   WarningKind = "unreachable"
	WarnCycle         WarningKind = "cycle"
	WarnDeadEnd       WarningKind = "dead_end"
	WarnNoOutcomeNode WarningKind = "no_outcome"
)

type Warning struct {
	Kind    WarningKind `json:"kind"`
	NodeKey string      `json:"nodeKey,omitempty"`
	Message string      `json:"message"`
}

// Lint reports structural problems. None of them block saving; the editor
// shows them next to the graph.
func (g *Graph) Lint() []Warning {
	var out []Warning
	if _, ok := g.nodes[g.Start]; !ok {
		out = append(out, Warning{Kind: WarnMissingStart, NodeKey: g.Start, Message: fmt.Sprintf("start node %q does not exist", g.Start)})
	}
	hasOutcome := false
	for _, key := range g.order {
		n := g.nodes[key]
		if n.NodeType == NodeOutcome {
			hasOutcome = true
			continue
		}
		next := edges(n)
		if len(next) == 0 {
			out = append(out, Warning{Kind: WarnDeadEnd, NodeKey: key, Message: fmt.Sprintf("%s node %q has no transition", n.NodeType, key)})
		}
		for _, to := range next {
			if _, ok := g.nodes[to]; !ok {
				out = append(out, Warning{Kind: WarnDanglingRef, NodeKey: key, Message: fmt.Sprintf("node %q points at missing node %q", key, to)})
			}
		}
	}
	if !hasOutcome && len(g.order) > 0 {
		out = append(out, Warning{Kind: WarnNoOutcomeNode, Message: "scenario has no OUTCOME node"})
	}

	reach := g.reachable()
	for _, key := range g.order {
		if !reach[key] {
			out = append(out, Warning{Kind: WarnUnreachable, NodeKey: key, Message: fmt.Sprintf("node %q is not reachable from %q", key, g.Start)})
		}
	}
	if key, ok := g.findCycle(); ok {
		out = append(out, Warning{Kind: WarnCycle, NodeKey: key, Message: fmt.Sprintf("node %q is part of a cycle", key)})
	}
	return out
}

func (g *Graph) reachable() map[string]bool {
	seen := map[string]bool{}
	if _, ok := g.nodes[g.Start]; !ok {
		return seen
	}
	stack := []string{g.Start}
	for len(stack) > 0 {
		key := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[key] {
			continue
		}
		seen[key] = true
		for _, to := range edges(g.nodes[key]) {
			if _, ok := g.nodes[to]; ok && !seen[to] {
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// findCycle runs a three-colour DFS over every node.
func (g *Graph) findCycle() (string, bool) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(string) (string, bool)
	visit = func(key string) (string, bool) {
		color[key] = grey
		for _, to := range edges(g.nodes[key]) {
			if _, ok := g.nodes[to]; !ok {
				continue
			}
			switch color[to] {
			case grey:
				return to, true
			case white:
				if k, ok := visit(to); ok {
					return k, true
				}
			}
		}
		color[key] = black
		return "", false
	}
	for _, key := range g.order {
		if color[key] == white {
			if k, ok := visit(key); ok {
				return k, true
			}
		}
	}
	return "", false
}

// Pick is one learner choice at a DECISION node.
type Pick struct {
	NodeKey  string
	ChoiceID string
}

type WalkResult struct {
	Path []string `json:"path"`
	// Scored holds the choices that lie on the walked path, in order.
	Scored []Choice `json:"-"`
	// Outcome is set when the walk ended on an OUTCOME node.
	Outcome *OutcomeBody `json:"outcome,omitempty"`
	// Consumed counts the picks that matched the path.
	Consumed int `json:"consumed"`
}

// Walk replays picks from the start node. It stops at an OUTCOME, at a
// missing node, when the next pick does not belong to the current DECISION,
// or after Len() steps so a cyclic graph cannot walk forever.
func (g *Graph) Walk(picks []Pick) WalkResult {
	var res WalkResult
	cur := g.Start
	for steps := 0; steps <= g.Len(); steps++ {
		n, ok := g.nodes[cur]
		if !ok {
			return res
		}
		res.Path = append(res.Path, cur)
		switch n.NodeType {
		case NodeOutcome:
			if b, err := n.Outcome(); err == nil {
				res.Outcome = &b
			}
			return res
		case NodeNarrative:
			b, err := n.Narrative()
			if err != nil {
				return res
			}
			cur = b.Next
		case NodeDecision:
			if res.Consumed >= len(picks) || picks[res.Consumed].NodeKey != cur {
				return res
			}
			b, err := n.Decision()
			if err != nil {
				return res
			}
			c, ok := b.Choice(picks[res.Consumed].ChoiceID)
			if !ok {
				return res
			}
			res.Consumed++
			res.Scored = append(res.Scored, c)
			cur = c.NextNode
		default:
			return res
		}
	}
	return res
}

// Aggregate averages choice scores into a 0-100 total and averages each KPI
// over the choices that carry it.
func Aggregate(choices []Choice) (float64, map[string]float64) {
	kpis := map[string]float64{}
	if len(choices) == 0 {
		return 0, kpis
	}
	var total float64
	counts := map[string]int{}
	for _, c := range choices {
		total += c.Score
		for k, v := range c.KPIScores {
			kpis[k] += v
			counts[k]++
		}
	}
	for k := range kpis {
		kpis[k] = round2(kpis[k] / float64(counts[k]))
	}
	return round2(total / float64(len(choices))), kpis
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
