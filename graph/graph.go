// Package graph provides the core tool-graph execution engine for stepflow.
package graph

import "fmt"

// EndNode is the sentinel successor name that terminates a run.
//
// An edge rule resolving to EndNode (or to no node at all) stops the
// execution loop normally.
const EndNode = "end"

// Graph is a static workflow definition: a set of named nodes, an entry
// point, and a routing rule per node.
//
// Graphs are immutable once created. A node absent from Edges has no
// outgoing rule, which means "terminate after this node". Each node name
// doubles as the name of the tool that backs it in the tool registry.
type Graph struct {
	// ID is the unique identifier assigned at creation.
	ID string `json:"graph_id"`

	// Nodes lists the distinct node names of the graph.
	Nodes []string `json:"nodes"`

	// StartNode is the entry point. It must be a member of Nodes.
	StartNode string `json:"start_node"`

	// Edges maps a node name to its outgoing rule.
	Edges map[string]EdgeRule `json:"-"`
}

// HasNode reports whether name belongs to the graph's node set.
func (g *Graph) HasNode(name string) bool {
	for _, n := range g.Nodes {
		if n == name {
			return true
		}
	}
	return false
}

// EdgeRule is the routing directive attached to a node. It is a closed
// union of two variants:
//
//   - LinearRule: unconditional successor, or none (terminate).
//   - ConditionalRule: pick between two successors based on the
//     truthiness of a state key.
//
// Resolve is evaluated against the post-merge state of the step that
// just ran, so a branch taken on the same step that produced the
// condition's value sees the updated value.
type EdgeRule interface {
	// Resolve returns the next node name, EndNode, or "" (terminate).
	Resolve(state State) (string, error)
}

// LinearRule routes unconditionally to Next. An empty Next terminates
// the run after the node completes.
type LinearRule struct {
	Next string
}

// Resolve implements EdgeRule.
func (r LinearRule) Resolve(State) (string, error) {
	return r.Next, nil
}

// ConditionalRule routes on the truthiness of a state key: OnTrue when
// the key is present and truthy, OnFalse otherwise. Both branches are
// required.
type ConditionalRule struct {
	ConditionKey string
	OnTrue       string
	OnFalse      string
}

// Resolve implements EdgeRule.
//
// A rule missing either branch is a fault of the current step and turns
// the run into status=error. Graphs built through CreateGraph can never
// hit this; the guard covers rules assembled directly in Go.
func (r ConditionalRule) Resolve(state State) (string, error) {
	if r.OnTrue == "" || r.OnFalse == "" {
		return "", fmt.Errorf("conditional rule on key %q is missing a branch", r.ConditionKey)
	}
	if truthy(state[r.ConditionKey]) {
		return r.OnTrue, nil
	}
	return r.OnFalse, nil
}

// RuleSpec is the declarative wire form of an edge rule, as it appears
// in JSON requests and YAML configuration:
//
//	{"next": "some_node"}
//
//	{"condition_key": "ready", "on_true": "end", "on_false": "retry"}
//
// The variant is selected by which fields are set; mixing fields from
// both variants is rejected.
type RuleSpec struct {
	Next         string `json:"next,omitempty" yaml:"next,omitempty"`
	ConditionKey string `json:"condition_key,omitempty" yaml:"condition_key,omitempty"`
	OnTrue       string `json:"on_true,omitempty" yaml:"on_true,omitempty"`
	OnFalse      string `json:"on_false,omitempty" yaml:"on_false,omitempty"`
}

// Rule converts the wire form into the corresponding EdgeRule variant.
func (s RuleSpec) Rule() (EdgeRule, error) {
	conditional := s.ConditionKey != "" || s.OnTrue != "" || s.OnFalse != ""
	if !conditional {
		return LinearRule{Next: s.Next}, nil
	}
	if s.Next != "" {
		return nil, &ValidationError{Message: "edge rule mixes linear and conditional fields"}
	}
	if s.ConditionKey == "" {
		return nil, &ValidationError{Message: "conditional edge rule requires condition_key"}
	}
	if s.OnTrue == "" || s.OnFalse == "" {
		return nil, &ValidationError{Message: fmt.Sprintf("conditional edge rule on key %q requires both on_true and on_false", s.ConditionKey)}
	}
	return ConditionalRule{ConditionKey: s.ConditionKey, OnTrue: s.OnTrue, OnFalse: s.OnFalse}, nil
}

// RulesFromSpecs converts a full edge mapping from wire form. The node
// key is carried into error messages.
func RulesFromSpecs(specs map[string]RuleSpec) (map[string]EdgeRule, error) {
	edges := make(map[string]EdgeRule, len(specs))
	for node, spec := range specs {
		rule, err := spec.Rule()
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("edge %q: %v", node, err)}
		}
		edges[node] = rule
	}
	return edges, nil
}

// validateGraph checks a graph definition before anything is stored.
//
// Beyond the start-node membership check, every edge is validated
// structurally so that a malformed rule is a creation-time
// ValidationError instead of a run-time fault: edge sources must be
// known nodes and every successor must be a known node or EndNode.
func validateGraph(nodes []string, startNode string, edges map[string]EdgeRule) error {
	if len(nodes) == 0 {
		return &ValidationError{Message: "graph requires at least one node"}
	}
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n == "" {
			return &ValidationError{Message: "node names cannot be empty"}
		}
		if n == EndNode {
			return &ValidationError{Message: `"end" is reserved and cannot be used as a node name`}
		}
		if seen[n] {
			return &ValidationError{Message: "duplicate node name: " + n}
		}
		seen[n] = true
	}
	if !seen[startNode] {
		return &ValidationError{Message: "start_node must be one of the nodes"}
	}

	target := func(name string) bool {
		return name == "" || name == EndNode || seen[name]
	}
	for node, rule := range edges {
		if !seen[node] {
			return &ValidationError{Message: "edge source is not a node: " + node}
		}
		switch r := rule.(type) {
		case LinearRule:
			if !target(r.Next) {
				return &ValidationError{Message: fmt.Sprintf("edge %q: next node %q does not exist", node, r.Next)}
			}
		case ConditionalRule:
			if r.ConditionKey == "" {
				return &ValidationError{Message: fmt.Sprintf("edge %q: conditional rule requires condition_key", node)}
			}
			if r.OnTrue == "" || r.OnFalse == "" {
				return &ValidationError{Message: fmt.Sprintf("edge %q: conditional rule requires both on_true and on_false", node)}
			}
			if !target(r.OnTrue) {
				return &ValidationError{Message: fmt.Sprintf("edge %q: on_true node %q does not exist", node, r.OnTrue)}
			}
			if !target(r.OnFalse) {
				return &ValidationError{Message: fmt.Sprintf("edge %q: on_false node %q does not exist", node, r.OnFalse)}
			}
		case nil:
			return &ValidationError{Message: fmt.Sprintf("edge %q: rule is nil", node)}
		default:
			return &ValidationError{Message: fmt.Sprintf("edge %q: unknown rule type %T", node, rule)}
		}
	}
	return nil
}
