package engine

import (
	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
)

// Mode tells the dispatcher how to walk a step.
type Mode string

const (
	ModeTask       Mode = "task"       // leaf: hand the task to the caller
	ModeSequential Mode = "sequential" // children one after another, in order
	ModeConcurrent Mode = "concurrent" // children all at once
)

// Step is one node of a dispatch plan. The plan mirrors the graph: task
// nodes become leaves, pipelines and sub-DAGs become sequential steps in
// their topological order, and every group becomes a concurrent step.
type Step struct {
	Name  string   `json:"name"`
	Mode  Mode     `json:"mode"`
	Kind  dag.Kind `json:"kind,omitempty"`
	Task  any      `json:"task,omitempty"`
	Steps []*Step  `json:"steps,omitempty"`
}

// Plan expands g into a dispatch plan. Top-level nodes run sequentially in
// topological order.
func Plan(g *dag.Graph) *Step {
	root := &Step{Mode: ModeSequential}
	for _, name := range g.TopologicalSort() {
		p, _ := g.Payload(name)
		root.Steps = append(root.Steps, planPayload(name, p))
	}
	return root
}

func planPayload(name string, p dag.Payload) *Step {
	switch p.Kind() {
	case dag.PayloadGroup:
		agg, _ := p.Group()
		s := &Step{Name: name, Mode: ModeConcurrent, Kind: dag.KindGroup}
		for _, m := range agg.Names() {
			mp, _ := agg.Get(m)
			s.Steps = append(s.Steps, planPayload(m, mp))
		}
		return s
	case dag.PayloadNested:
		cn, _ := p.Nested()
		if cn == nil {
			return &Step{Name: name, Mode: ModeSequential}
		}
		// Group ids may depend on each other, so even a group node walks its
		// aggregates in order; the concurrency lives inside each aggregate.
		s := &Step{Name: name, Mode: ModeSequential, Kind: cn.Kind()}
		for _, sub := range cn.TopologicalSort() {
			sp, _ := cn.Payload(sub)
			s.Steps = append(s.Steps, planPayload(sub, sp))
		}
		return s
	}
	task, _ := p.Task()
	return &Step{Name: name, Mode: ModeTask, Task: task}
}

// Leaves returns the number of task leaves under s.
func (s *Step) Leaves() int {
	if s.Mode == ModeTask {
		return 1
	}
	n := 0
	for _, c := range s.Steps {
		n += c.Leaves()
	}
	return n
}
