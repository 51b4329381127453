// Package graph defines the processing-graph descriptor model and the
// runtime graph built from it. A descriptor is the declarative form that
// travels through configuration and the HTTP API; the runtime graph is the
// instantiated set of stages executed once per frame.
package graph

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	apperrors "github.com/sctg-development/rust-photoacoustic-sub001/errors"
)

// NodeDescriptor declares one node of the processing graph: a unique id, a
// type tag resolved against the stage catalog, and free-form parameters
// interpreted by the stage factory.
type NodeDescriptor struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Connection is a directed edge between two node ids.
type Connection struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Descriptor is the declarative form of a whole processing graph.
type Descriptor struct {
	Nodes       []NodeDescriptor `json:"nodes" yaml:"nodes"`
	Connections []Connection     `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// InputNodeType is the type tag of acquisition entry nodes. Input nodes
// are the only nodes allowed to have no inbound connection.
const InputNodeType = "input"

// ParseJSON decodes a descriptor from JSON.
func ParseJSON(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, apperrors.WrapValidation(err, "graph", "parse", "decoding JSON descriptor")
	}
	return d, nil
}

// ParseYAML decodes a descriptor from YAML.
func ParseYAML(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, apperrors.WrapValidation(err, "graph", "parse", "decoding YAML descriptor")
	}
	return d, nil
}

// MarshalJSONIndent renders the descriptor as indented JSON for API
// responses and the validate command.
func (d Descriptor) MarshalJSONIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Node returns the descriptor of the node with the given id.
func (d Descriptor) Node(id string) (NodeDescriptor, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDescriptor{}, false
}

// Validate checks the structural invariants of the descriptor: node ids
// are unique and non-empty, every connection references declared nodes,
// the graph is acyclic, and every non-input node has exactly one inbound
// connection. It never mutates the descriptor.
func (d Descriptor) Validate() error {
	if len(d.Nodes) == 0 {
		return apperrors.WrapValidation(
			fmt.Errorf("%w: descriptor declares no nodes", apperrors.ErrInvalidConfig),
			"graph", "validate", "checking nodes")
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: node with empty id", apperrors.ErrInvalidConfig),
				"graph", "validate", "checking node ids")
		}
		if n.Type == "" {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: node %q has empty type", apperrors.ErrInvalidConfig, n.ID),
				"graph", "validate", "checking node types")
		}
		if seen[n.ID] {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: %q", apperrors.ErrDuplicateNodeID, n.ID),
				"graph", "validate", "checking node ids")
		}
		seen[n.ID] = true
	}

	inbound := make(map[string]int, len(d.Nodes))
	for _, c := range d.Connections {
		if !seen[c.From] {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: connection source %q", apperrors.ErrNodeNotFound, c.From),
				"graph", "validate", "checking connections")
		}
		if !seen[c.To] {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: connection target %q", apperrors.ErrNodeNotFound, c.To),
				"graph", "validate", "checking connections")
		}
		inbound[c.To]++
		if inbound[c.To] > 1 {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: node %q has multiple inbound connections", apperrors.ErrInvalidConfig, c.To),
				"graph", "validate", "checking connections")
		}
	}

	for _, n := range d.Nodes {
		if n.Type != InputNodeType && inbound[n.ID] == 0 {
			return apperrors.WrapValidation(
				fmt.Errorf("%w: %q", apperrors.ErrDisconnectedNode, n.ID),
				"graph", "validate", "checking connectivity")
		}
	}

	if _, err := d.ExecutionOrder(); err != nil {
		return err
	}
	return nil
}

// ExecutionOrder returns a topological ordering of node ids. Ties are
// broken by declaration order so the ordering is deterministic for a given
// descriptor. Returns ErrCyclicGraph when no ordering exists.
func (d Descriptor) ExecutionOrder() ([]string, error) {
	indegree := make(map[string]int, len(d.Nodes))
	adjacency := make(map[string][]string, len(d.Nodes))
	position := make(map[string]int, len(d.Nodes))

	for i, n := range d.Nodes {
		indegree[n.ID] = 0
		position[n.ID] = i
	}
	for _, c := range d.Connections {
		adjacency[c.From] = append(adjacency[c.From], c.To)
		indegree[c.To]++
	}

	var ready []string
	for _, n := range d.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	order := make([]string, 0, len(d.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return position[ready[i]] < position[ready[j]]
		})
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		return nil, apperrors.WrapValidation(
			apperrors.ErrCyclicGraph, "graph", "order", "sorting nodes")
	}
	return order, nil
}

// Diff summarizes how two descriptors differ, in the terms the reload
// dispatcher cares about.
type Diff struct {
	// SameTopology is true when both descriptors declare the same node
	// ids with the same type tags and the same connection set.
	SameTopology bool
	// ChangedParams lists, in new-descriptor order, the ids of nodes whose
	// parameters differ between the two descriptors. Only meaningful when
	// SameTopology is true.
	ChangedParams []string
}

// Compare diffs two descriptors. Connection order and node order are
// irrelevant: two descriptors declaring the same sets compare equal.
// Parameters compare by canonical JSON so that values decoded from YAML
// and JSON sources compare consistently.
func Compare(old, new Descriptor) Diff {
	oldNodes := make(map[string]NodeDescriptor, len(old.Nodes))
	for _, n := range old.Nodes {
		oldNodes[n.ID] = n
	}

	if len(old.Nodes) != len(new.Nodes) {
		return Diff{}
	}
	for _, n := range new.Nodes {
		prev, ok := oldNodes[n.ID]
		if !ok || prev.Type != n.Type {
			return Diff{}
		}
	}
	if !sameConnections(old.Connections, new.Connections) {
		return Diff{}
	}

	diff := Diff{SameTopology: true}
	for _, n := range new.Nodes {
		if !paramsEqual(oldNodes[n.ID].Parameters, n.Parameters) {
			diff.ChangedParams = append(diff.ChangedParams, n.ID)
		}
	}
	return diff
}

func sameConnections(a, b []Connection) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[Connection]int, len(a))
	for _, c := range a {
		set[c]++
	}
	for _, c := range b {
		set[c]--
		if set[c] < 0 {
			return false
		}
	}
	return true
}

// paramsEqual compares parameter maps through canonical JSON. This
// normalizes numeric representation differences between decoders.
func paramsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return errA == nil && errB == nil
	}
	return string(ja) == string(jb)
}
