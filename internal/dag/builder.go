package dag

import (
	"fmt"

	"github.com/gyaneshwarpardhi/flowdag/internal/config"
	"github.com/gyaneshwarpardhi/flowdag/internal/metrics"
)

// Task is the payload Build stores for task nodes. The graph carries it
// without interpreting it.
type Task struct {
	Name   string            `json:"name"`
	Run    string            `json:"run,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Build constructs a Graph from a validated WorkflowConfig. Pipelines,
// groups and sub-DAGs become CondensedNodes stored as nested payloads; every
// edge goes through the same acyclicity checks as a hand-built graph.
func Build(cfg *config.WorkflowConfig, opts ...Option) (*Graph, error) {
	g, err := build(cfg, opts)
	if err != nil {
		metrics.WorkflowBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.WorkflowBuilds.WithLabelValues("success").Inc()
	return g, nil
}

func build(cfg *config.WorkflowConfig, opts []Option) (*Graph, error) {
	wf := cfg.Workflow
	g := NewGraph(opts...)
	for _, n := range wf.Nodes {
		p, err := buildPayload(n, opts)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: node %s: %w", wf.Name, n.Name, err)
		}
		g.AddNode(n.Name, p)
	}
	for _, e := range wf.Edges {
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", wf.Name, err)
		}
	}
	return g, nil
}

func buildPayload(n config.NodeDef, opts []Option) (Payload, error) {
	switch {
	case n.Task != nil:
		return TaskPayload(&Task{Name: n.Name, Run: n.Task.Run, Params: n.Task.Params}), nil

	case n.Pipeline != nil:
		cn, err := NewCondensedNode(n.Name, KindPipeline, opts...)
		if err != nil {
			return Payload{}, err
		}
		names, payloads, err := buildMembers(n.Pipeline.Steps, opts)
		if err != nil {
			return Payload{}, err
		}
		if err := cn.AddPipeline(names, payloads); err != nil {
			return Payload{}, err
		}
		return NestedPayload(cn), nil

	case len(n.Groups) > 0:
		cn, err := NewCondensedNode(n.Name, KindGroup, opts...)
		if err != nil {
			return Payload{}, err
		}
		for _, gd := range n.Groups {
			names, payloads, err := buildMembers(gd.Members, opts)
			if err != nil {
				return Payload{}, fmt.Errorf("group %s: %w", gd.ID, err)
			}
			if err := cn.AddGroup(gd.ID, gd.DependsOn, names, payloads); err != nil {
				return Payload{}, err
			}
		}
		return NestedPayload(cn), nil

	case n.SubDAG != nil:
		cn, err := NewCondensedNode(n.Name, KindSubDAG, opts...)
		if err != nil {
			return Payload{}, err
		}
		for _, child := range n.SubDAG.Nodes {
			p, err := buildPayload(child, opts)
			if err != nil {
				return Payload{}, fmt.Errorf("node %s: %w", child.Name, err)
			}
			if err := cn.AddSubNode(child.Name, p); err != nil {
				return Payload{}, err
			}
		}
		for _, e := range n.SubDAG.Edges {
			if err := cn.AddSubEdge(e.From, e.To); err != nil {
				return Payload{}, err
			}
		}
		return NestedPayload(cn), nil
	}
	return Payload{}, newError("build", ErrInvalidArgument, "node %q has no task, pipeline, groups or subdag", n.Name)
}

func buildMembers(defs []config.NodeDef, opts []Option) ([]string, []Payload, error) {
	names := make([]string, 0, len(defs))
	payloads := make([]Payload, 0, len(defs))
	for _, d := range defs {
		p, err := buildPayload(d, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", d.Name, err)
		}
		names = append(names, d.Name)
		payloads = append(payloads, p)
	}
	return names, payloads, nil
}
