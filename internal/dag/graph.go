package dag

import (
	"log/slog"
	"slices"

	"github.com/gyaneshwarpardhi/flowdag/internal/metrics"
)

// Edge is a directed dependency: Dest runs after Src.
type Edge struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// Option configures a Graph or CondensedNode.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes diagnostics to l instead of slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Graph is a directed acyclic graph of named nodes. Node insertion order is
// kept and drives traversal order, so every traversal is deterministic for a
// given construction history.
//
// Graph is not safe for concurrent mutation; see SyncGraph.
type Graph struct {
	order     []string            // node names in insertion order
	values    map[string]Payload  // name → payload
	adjacency map[string][]string // name → ordered successors
	log       *slog.Logger
}

// NewGraph allocates an empty Graph.
func NewGraph(opts ...Option) *Graph {
	o := buildOptions(opts)
	return &Graph{
		values:    make(map[string]Payload),
		adjacency: make(map[string][]string),
		log:       o.logger,
	}
}

// AddNode registers a node. Adding a name that already exists is a no-op.
func (g *Graph) AddNode(name string, p Payload) {
	if _, ok := g.values[name]; ok {
		g.log.Info("node already exists, skipping", "node", name)
		return
	}
	g.insert(name, p)
	g.log.Debug("node added", "node", name, "payload", p.typeTag())
	metrics.NodesAdded.Inc()
}

func (g *Graph) insert(name string, p Payload) {
	g.order = append(g.order, name)
	g.values[name] = p
	g.adjacency[name] = []string{}
}

// AddEdge records that dest depends on src. Both nodes must exist. Adding an
// edge that is already present is a no-op. An edge that would close a cycle
// is rolled back and ErrCycleRejected is returned.
func (g *Graph) AddEdge(src, dest string) error {
	return g.addEdge("add edge", src, dest)
}

func (g *Graph) addEdge(op, src, dest string) error {
	if src == dest {
		g.log.Warn("self-referring edge rejected", "src", src, "dest", dest)
		metrics.EdgesRejected.WithLabelValues("self_loop").Inc()
		return newError(op, ErrInvalidArgument, "self-referring edge (%s, %s)", src, dest)
	}
	for _, n := range [...]string{src, dest} {
		if _, ok := g.adjacency[n]; !ok {
			g.log.Warn("edge references missing node", "src", src, "dest", dest, "node", n)
			metrics.EdgesRejected.WithLabelValues("unknown_node").Inc()
			return newError(op, ErrUnknownNode, "edge (%s, %s): node %q does not exist", src, dest, n)
		}
	}
	if slices.Contains(g.adjacency[src], dest) {
		g.log.Info("edge already exists, skipping", "src", src, "dest", dest)
		return nil
	}

	g.adjacency[src] = append(g.adjacency[src], dest)
	if g.DetectCycle() {
		succ := g.adjacency[src]
		g.adjacency[src] = succ[:len(succ)-1]
		g.log.Warn("edge would create a cycle, rolled back", "src", src, "dest", dest)
		metrics.EdgesRejected.WithLabelValues("cycle").Inc()
		return newError(op, ErrCycleRejected, "edge (%s, %s) creates a cycle", src, dest)
	}
	g.log.Debug("edge added", "src", src, "dest", dest)
	metrics.EdgesAdded.Inc()
	return nil
}

// RemoveEdge deletes the edge (src, dest). Unknown nodes and missing edges
// are tolerated.
func (g *Graph) RemoveEdge(src, dest string) {
	for _, n := range [...]string{src, dest} {
		if _, ok := g.adjacency[n]; !ok {
			g.log.Info("cannot remove edge, node does not exist", "src", src, "dest", dest, "node", n)
			return
		}
	}
	succ := g.adjacency[src]
	i := slices.Index(succ, dest)
	if i < 0 {
		return
	}
	g.adjacency[src] = slices.Delete(succ, i, i+1)
	g.log.Debug("edge removed", "src", src, "dest", dest)
}

type frame struct {
	name string
	next int // index of the next successor to visit
}

// TopologicalSort returns every node such that for each edge (u, v), u comes
// before v. It is a depth-first postorder with roots taken in insertion
// order. The graph must be acyclic, which AddEdge guarantees.
func (g *Graph) TopologicalSort() []string {
	visited := make(map[string]bool, len(g.order))
	post := make([]string, 0, len(g.order))
	var stack []frame

	for _, root := range g.order {
		if visited[root] {
			continue
		}
		visited[root] = true
		stack = append(stack, frame{name: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.adjacency[top.name]
			if top.next < len(succ) {
				child := succ[top.next]
				top.next++
				if !visited[child] {
					visited[child] = true
					stack = append(stack, frame{name: child})
				}
				continue
			}
			post = append(post, top.name)
			stack = stack[:len(stack)-1]
		}
	}
	slices.Reverse(post)
	return post
}

const (
	unvisited uint8 = iota
	onPath
	finished
)

// DetectCycle reports whether any back-edge exists. Every node is tried as a
// root so cycles in disconnected components are found too.
func (g *Graph) DetectCycle() bool {
	state := make(map[string]uint8, len(g.order))
	var stack []frame

	for _, root := range g.order {
		if state[root] != unvisited {
			continue
		}
		state[root] = onPath
		stack = append(stack[:0], frame{name: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.adjacency[top.name]
			if top.next < len(succ) {
				child := succ[top.next]
				top.next++
				switch state[child] {
				case onPath:
					g.log.Debug("cycle detected", "from", top.name, "to", child, "origin", root)
					return true
				case unvisited:
					state[child] = onPath
					stack = append(stack, frame{name: child})
				}
				continue
			}
			state[top.name] = finished
			stack = stack[:len(stack)-1]
		}
	}
	return false
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Has reports whether a node exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.values[name]
	return ok
}

// Names returns node names in insertion order.
func (g *Graph) Names() []string {
	return slices.Clone(g.order)
}

// Last returns the most recently inserted node name.
func (g *Graph) Last() (string, bool) {
	if len(g.order) == 0 {
		return "", false
	}
	return g.order[len(g.order)-1], true
}

// Roots returns the nodes without incoming edges, in insertion order.
func (g *Graph) Roots() []string {
	indeg := make(map[string]int, len(g.order))
	for _, succ := range g.adjacency {
		for _, dest := range succ {
			indeg[dest]++
		}
	}
	var out []string
	for _, name := range g.order {
		if indeg[name] == 0 {
			out = append(out, name)
		}
	}
	return out
}

// Payload returns the payload of a node.
func (g *Graph) Payload(name string) (Payload, bool) {
	p, ok := g.values[name]
	return p, ok
}

// Successors returns the direct successors of a node in edge insertion order.
func (g *Graph) Successors(name string) []string {
	return slices.Clone(g.adjacency[name])
}

// Edges returns all edges, grouped by source in node insertion order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, src := range g.order {
		for _, dest := range g.adjacency[src] {
			out = append(out, Edge{Src: src, Dest: dest})
		}
	}
	return out
}

// truncate removes every node inserted after the first n, together with all
// edges touching them.
func (g *Graph) truncate(n int) {
	if n >= len(g.order) {
		return
	}
	dropped := g.order[n:]
	for _, name := range dropped {
		delete(g.values, name)
		delete(g.adjacency, name)
	}
	for src, succ := range g.adjacency {
		g.adjacency[src] = slices.DeleteFunc(succ, func(d string) bool {
			return slices.Contains(dropped, d)
		})
	}
	g.order = slices.Clone(g.order[:n])
}

// removeNode undoes an insert that has no edges yet.
func (g *Graph) removeNode(name string) {
	if i := slices.Index(g.order, name); i >= 0 {
		g.order = slices.Delete(g.order, i, i+1)
	}
	delete(g.values, name)
	delete(g.adjacency, name)
}
