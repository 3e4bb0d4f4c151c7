package dag

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gyaneshwarpardhi/flowdag/internal/metrics"
)

// Kind tells an executor how to expand a condensed node.
type Kind string

const (
	// KindPipeline is a strict sequential chain: task1 → task2 → task3.
	KindPipeline Kind = "pipeline"
	// KindGroup holds mutually independent groups whose members may run
	// concurrently: task1 | task2 | task3.
	KindGroup Kind = "group"
	// KindSubDAG is an arbitrary nested DAG.
	KindSubDAG Kind = "subdag"
)

func (k Kind) valid() bool {
	return k == KindPipeline || k == KindGroup || k == KindSubDAG
}

// CondensedNode is a DAG treated as a single node of a parent graph and
// expanded at execution time. Its kind is fixed at construction and adds
// structural rules on top of the plain edge rules of Graph. The inner graph
// is not exposed for mutation, so those rules cannot be bypassed.
type CondensedNode struct {
	name     string
	kind     Kind
	graph    *Graph
	usedIDs  map[string]struct{} // grows only
	groupIDs []string            // usedIDs in insertion order
	log      *slog.Logger
}

// NewCondensedNode creates an empty condensed node of the given kind.
func NewCondensedNode(name string, kind Kind, opts ...Option) (*CondensedNode, error) {
	if !kind.valid() {
		return nil, newError("new condensed node", ErrInvalidConstruction,
			"kind %q of %q must be pipeline, group or subdag", kind, name)
	}
	o := buildOptions(opts)
	log := o.logger.With("condensed", name, "kind", string(kind))
	return &CondensedNode{
		name:    name,
		kind:    kind,
		graph:   NewGraph(WithLogger(log)),
		usedIDs: make(map[string]struct{}),
		log:     log,
	}, nil
}

func (cn *CondensedNode) Name() string { return cn.name }
func (cn *CondensedNode) Kind() Kind   { return cn.kind }

// Size returns the number of sub-nodes. A group counts once however many
// members it has.
func (cn *CondensedNode) Size() int { return cn.graph.Len() }

// AddSubNode adds a sub-node. Existing names are skipped. In a pipeline the
// new sub-node is chained after the most recently added one.
func (cn *CondensedNode) AddSubNode(name string, p Payload) error {
	const op = "add sub-node"
	if cn.graph.Has(name) {
		cn.log.Info("sub-node already exists, skipping", "node", name)
		return nil
	}
	if nested, ok := p.Nested(); ok && nested != nil && nested.contains(cn) {
		return newError(op, ErrInvalidArgument, "%q would contain itself through %q", cn.name, name)
	}

	last, chain := cn.graph.Last()
	chain = chain && cn.kind == KindPipeline

	cn.graph.insert(name, p)
	if chain {
		if err := cn.graph.addEdge(op, last, name); err != nil {
			cn.graph.removeNode(name)
			return err
		}
	}
	cn.log.Debug("sub-node added", "node", name, "payload", p.typeTag())
	metrics.NodesAdded.Inc()
	return nil
}

// AddSubEdge adds an edge between two existing sub-nodes, with the same
// rules as Graph.AddEdge.
func (cn *CondensedNode) AddSubEdge(src, dest string) error {
	return cn.graph.addEdge("add sub-edge", src, dest)
}

// AddPipeline appends names[i] → payloads[i] in order, chaining each to the
// previous one. A second call extends the same chain. If any entry is
// rejected, the sub-nodes and edges added by this call are removed again.
func (cn *CondensedNode) AddPipeline(names []string, payloads []Payload) error {
	const op = "add pipeline"
	switch {
	case cn.kind != KindPipeline:
		return newError(op, ErrInvalidArgument, "cannot add a pipeline to %s node %q", cn.kind, cn.name)
	case len(payloads) == 0:
		return newError(op, ErrInvalidArgument, "pipeline has no nodes")
	case len(names) != len(payloads):
		return newError(op, ErrInvalidArgument, "%d names for %d payloads", len(names), len(payloads))
	case len(payloads) == 1:
		return newError(op, ErrInvalidArgument, "pipeline needs at least two nodes")
	}
	mark := cn.graph.Len()
	for i, name := range names {
		if err := cn.AddSubNode(name, payloads[i]); err != nil {
			cn.graph.truncate(mark)
			cn.log.Warn("pipeline rolled back", "node", name, "err", err)
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// AddGroup adds a group of independent members under groupID. Only the
// aggregate becomes a sub-node; if dependsOn is non-empty it gets the edge
// dependsOn → groupID. Each group id is accepted once.
func (cn *CondensedNode) AddGroup(groupID, dependsOn string, names []string, payloads []Payload) error {
	const op = "add group"
	switch {
	case cn.kind != KindGroup:
		return newError(op, ErrInvalidOperation, "cannot add a group to %s node %q", cn.kind, cn.name)
	case groupID == "":
		return newError(op, ErrInvalidArgument, "group id must not be empty")
	case len(payloads) == 0:
		return newError(op, ErrInvalidArgument, "group %q has no nodes", groupID)
	case len(names) != len(payloads):
		return newError(op, ErrInvalidArgument, "group %q: %d names for %d payloads", groupID, len(names), len(payloads))
	case len(payloads) == 1:
		return newError(op, ErrInvalidArgument, "group %q needs at least two nodes", groupID)
	}
	if _, used := cn.usedIDs[groupID]; used {
		cn.log.Warn("group id reused", "group", groupID)
		return newError(op, ErrDuplicateGroupID, "group %q has already been added to %q", groupID, cn.name)
	}
	if cn.graph.Has(groupID) {
		return newError(op, ErrInvalidArgument, "group id %q collides with an existing sub-node", groupID)
	}
	if dependsOn != "" && !cn.graph.Has(dependsOn) {
		return newError(op, ErrUnknownNode, "group %q depends on %q which does not exist", groupID, dependsOn)
	}

	agg := newGroupAggregate(len(names))
	for i, name := range names {
		if _, dup := agg.values[name]; dup {
			return newError(op, ErrInvalidArgument, "group %q lists member %q twice", groupID, name)
		}
		if nested, ok := payloads[i].Nested(); ok && nested != nil && nested.contains(cn) {
			return newError(op, ErrInvalidArgument, "%q would contain itself through member %q", cn.name, name)
		}
		agg.names = append(agg.names, name)
		agg.values[name] = payloads[i]
	}

	cn.graph.insert(groupID, GroupPayload(agg))
	if dependsOn != "" {
		if err := cn.graph.addEdge(op, dependsOn, groupID); err != nil {
			cn.graph.removeNode(groupID)
			return err
		}
	}
	cn.usedIDs[groupID] = struct{}{}
	cn.groupIDs = append(cn.groupIDs, groupID)
	cn.log.Debug("group added", "group", groupID, "members", agg.Len(), "depends_on", dependsOn)
	metrics.NodesAdded.Inc()
	metrics.GroupsAdded.Inc()
	return nil
}

// GetGroup returns the aggregate stored under groupID. The bool is false if
// the id was never added.
func (cn *CondensedNode) GetGroup(groupID string) (*GroupAggregate, bool, error) {
	if cn.kind != KindGroup {
		return nil, false, newError("get group", ErrInvalidOperation,
			"cannot retrieve a group from %s node %q", cn.kind, cn.name)
	}
	if _, used := cn.usedIDs[groupID]; !used {
		cn.log.Info("group does not exist", "group", groupID)
		return nil, false, nil
	}
	p, _ := cn.graph.Payload(groupID)
	agg, _ := p.Group()
	return agg, true, nil
}

// GroupIDs returns the accepted group ids in the order they were added.
func (cn *CondensedNode) GroupIDs() []string { return slices.Clone(cn.groupIDs) }

func (cn *CondensedNode) TopologicalSort() []string           { return cn.graph.TopologicalSort() }
func (cn *CondensedNode) DetectCycle() bool                   { return cn.graph.DetectCycle() }
func (cn *CondensedNode) Names() []string                     { return cn.graph.Names() }
func (cn *CondensedNode) Has(name string) bool                { return cn.graph.Has(name) }
func (cn *CondensedNode) Payload(name string) (Payload, bool) { return cn.graph.Payload(name) }
func (cn *CondensedNode) Successors(name string) []string     { return cn.graph.Successors(name) }
func (cn *CondensedNode) Edges() []Edge                       { return cn.graph.Edges() }

// contains reports whether target is cn or is nested anywhere below it.
func (cn *CondensedNode) contains(target *CondensedNode) bool {
	seen := make(map[*CondensedNode]bool)
	stack := []*CondensedNode{cn}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, name := range cur.graph.order {
			stack = appendNested(stack, cur.graph.values[name])
		}
	}
	return false
}

func appendNested(stack []*CondensedNode, p Payload) []*CondensedNode {
	switch p.kind {
	case PayloadNested:
		if p.nested != nil {
			stack = append(stack, p.nested)
		}
	case PayloadGroup:
		if p.group == nil {
			break
		}
		for _, m := range p.group.names {
			stack = appendNested(stack, p.group.values[m])
		}
	}
	return stack
}
