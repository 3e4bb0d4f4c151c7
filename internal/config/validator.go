package config

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks the config for:
//   - Required fields
//   - Duplicate node names within one scope (top level, a pipeline, a group, a sub-DAG)
//   - Node definitions that set zero or several shapes
//   - Pipelines and groups with fewer than two entries
//   - Edges with missing endpoints
//
// Cycles and unknown edge endpoints are left to the graph, which rejects them
// when the workflow is built.
func Validate(cfg *WorkflowConfig) error {
	var err error
	if cfg.Version == "" {
		err = multierr.Append(err, fmt.Errorf("config: version is required"))
	}
	wf := cfg.Workflow
	if wf.Name == "" {
		err = multierr.Append(err, fmt.Errorf("workflow: name is required"))
	}
	if d := wf.Dispatch; d != nil && (d.Workers < 0 || d.QueueDepth < 0 || d.TimeoutMs < 0) {
		err = multierr.Append(err, fmt.Errorf("workflow %s: dispatch settings must not be negative", wf.Name))
	}
	loc := "workflow " + wf.Name
	err = multierr.Append(err, validateNodes(wf.Nodes, loc))
	err = multierr.Append(err, validateEdges(wf.Edges, loc))
	return err
}

func validateNodes(nodes []NodeDef, parent string) error {
	var err error
	seen := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.Name == "" {
			err = multierr.Append(err, fmt.Errorf("%s.nodes[%d]: name is required", parent, i))
			continue
		}
		if prev, ok := seen[n.Name]; ok {
			err = multierr.Append(err, fmt.Errorf("%s: duplicate name %q (first seen at index %d, again at %d)", parent, n.Name, prev, i))
		} else {
			seen[n.Name] = i
		}
		err = multierr.Append(err, validateNode(n, parent+"/"+n.Name))
	}
	return err
}

func validateNode(n NodeDef, loc string) error {
	shapes := 0
	for _, set := range []bool{n.Task != nil, n.Pipeline != nil, len(n.Groups) > 0, n.SubDAG != nil} {
		if set {
			shapes++
		}
	}
	switch {
	case shapes == 0:
		return fmt.Errorf("%s: one of task/pipeline/groups/subdag must be set", loc)
	case shapes > 1:
		return fmt.Errorf("%s: only one of task/pipeline/groups/subdag may be set", loc)
	}

	var err error
	switch {
	case n.Pipeline != nil:
		if len(n.Pipeline.Steps) < 2 {
			err = multierr.Append(err, fmt.Errorf("%s: pipeline needs at least two steps, got %d", loc, len(n.Pipeline.Steps)))
		}
		err = multierr.Append(err, validateNodes(n.Pipeline.Steps, loc))
	case len(n.Groups) > 0:
		ids := make(map[string]struct{}, len(n.Groups))
		for i, g := range n.Groups {
			if g.ID == "" {
				err = multierr.Append(err, fmt.Errorf("%s.groups[%d]: id is required", loc, i))
				continue
			}
			if _, dup := ids[g.ID]; dup {
				err = multierr.Append(err, fmt.Errorf("%s: duplicate group id %q", loc, g.ID))
			}
			ids[g.ID] = struct{}{}
			if len(g.Members) < 2 {
				err = multierr.Append(err, fmt.Errorf("%s/%s: group needs at least two members, got %d", loc, g.ID, len(g.Members)))
			}
			err = multierr.Append(err, validateNodes(g.Members, loc+"/"+g.ID))
		}
	case n.SubDAG != nil:
		err = multierr.Append(err, validateNodes(n.SubDAG.Nodes, loc))
		err = multierr.Append(err, validateEdges(n.SubDAG.Edges, loc))
	}
	return err
}

func validateEdges(edges []EdgeDef, parent string) error {
	var err error
	for i, e := range edges {
		if e.From == "" || e.To == "" {
			err = multierr.Append(err, fmt.Errorf("%s.edges[%d]: from and to are required", parent, i))
		}
	}
	return err
}
