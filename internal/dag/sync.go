package dag

import "sync"

// SyncGraph guards a Graph for use from several goroutines. Every mutation,
// including its cycle check and rollback, runs under one lock, so no reader
// ever observes a half-applied edge.
type SyncGraph struct {
	mu sync.RWMutex
	g  *Graph
}

// NewSyncGraph wraps g. The caller must stop using g directly.
func NewSyncGraph(g *Graph) *SyncGraph {
	return &SyncGraph{g: g}
}

func (s *SyncGraph) AddNode(name string, p Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.AddNode(name, p)
}

func (s *SyncGraph) AddEdge(src, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.AddEdge(src, dest)
}

func (s *SyncGraph) RemoveEdge(src, dest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.RemoveEdge(src, dest)
}

func (s *SyncGraph) TopologicalSort() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.TopologicalSort()
}

func (s *SyncGraph) DetectCycle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.DetectCycle()
}

func (s *SyncGraph) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Len()
}

// View runs fn with read access to the underlying graph. fn must not mutate
// it or retain it.
func (s *SyncGraph) View(fn func(g *Graph)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.g)
}

// SyncCondensedNode guards a CondensedNode the same way SyncGraph guards a
// Graph. A pipeline's chain edge and a group's dependency edge are applied
// with their sub-node under the same lock.
type SyncCondensedNode struct {
	mu sync.RWMutex
	cn *CondensedNode
}

// NewSyncCondensedNode wraps cn. The caller must stop using cn directly.
func NewSyncCondensedNode(cn *CondensedNode) *SyncCondensedNode {
	return &SyncCondensedNode{cn: cn}
}

func (s *SyncCondensedNode) AddSubNode(name string, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cn.AddSubNode(name, p)
}

func (s *SyncCondensedNode) AddSubEdge(src, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cn.AddSubEdge(src, dest)
}

func (s *SyncCondensedNode) AddPipeline(names []string, payloads []Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cn.AddPipeline(names, payloads)
}

func (s *SyncCondensedNode) AddGroup(groupID, dependsOn string, names []string, payloads []Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cn.AddGroup(groupID, dependsOn, names, payloads)
}

func (s *SyncCondensedNode) GetGroup(groupID string) (*GroupAggregate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cn.GetGroup(groupID)
}

func (s *SyncCondensedNode) TopologicalSort() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cn.TopologicalSort()
}

func (s *SyncCondensedNode) DetectCycle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cn.DetectCycle()
}

func (s *SyncCondensedNode) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cn.Size()
}

// View runs fn with read access to the underlying node. fn must not mutate
// it or retain it.
func (s *SyncCondensedNode) View(fn func(cn *CondensedNode)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.cn)
}
