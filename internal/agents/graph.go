package agents

import (
	"context"
	"fmt"
)

// END marks the terminal state of a graph.
const END = "END"

const maxSteps = 25

type NodeFunc func(ctx context.Context, state ChatState) (ChatState, error)

type conditionalEdge struct {
	condition func(state ChatState) string
	paths     map[string]string
}

// StateGraph is a small single-dispatch state machine: named nodes connected
// by fixed or state-dependent edges, executed sequentially from the entry
// point until END.
type StateGraph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entryPoint  string
}

func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge),
	}
}

func (g *StateGraph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

func (g *StateGraph) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge routes from a node based on the state: condition returns
// a key, paths maps keys to destination nodes.
func (g *StateGraph) AddConditionalEdge(from string, condition func(state ChatState) string, paths map[string]string) {
	g.conditional[from] = conditionalEdge{condition: condition, paths: paths}
}

func (g *StateGraph) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Compile validates the graph and returns an executable form.
func (g *StateGraph) Compile() (*Runnable, error) {
	if g.entryPoint == "" {
		return nil, fmt.Errorf("graph has no entry point")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("entry point %q is not a node", g.entryPoint)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", from)
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("edge from %q to unknown node %q", from, to)
			}
		}
	}
	for from, edge := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("conditional edge from unknown node %q", from)
		}
		for key, to := range edge.paths {
			if to != END {
				if _, ok := g.nodes[to]; !ok {
					return nil, fmt.Errorf("conditional path %q from %q targets unknown node %q", key, from, to)
				}
			}
		}
	}
	return &Runnable{graph: g}, nil
}

type Runnable struct {
	graph *StateGraph
}

// Run executes the graph from its entry point until END, threading the state
// through each node.
func (r *Runnable) Run(ctx context.Context, state ChatState) (ChatState, error) {
	current := r.graph.entryPoint

	for steps := 0; current != END; steps++ {
		if steps >= maxSteps {
			return state, fmt.Errorf("graph exceeded %d steps without reaching END", maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("unknown node %q", current)
		}

		next, err := node(ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %q failed: %w", current, err)
		}
		state = next

		if edge, ok := r.graph.conditional[current]; ok {
			key := edge.condition(state)
			dest, ok := edge.paths[key]
			if !ok {
				return state, fmt.Errorf("no conditional path for %q from node %q", key, current)
			}
			current = dest
			continue
		}

		dest, ok := r.graph.edges[current]
		if !ok {
			return state, fmt.Errorf("node %q has no outgoing edge", current)
		}
		current = dest
	}

	return state, nil
}
