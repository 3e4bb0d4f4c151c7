package config

// WorkflowConfig is the top-level structure of a workflow file. The same
// types decode from YAML and from HCL.
type WorkflowConfig struct {
	Version  string      `yaml:"version" hcl:"version"`
	Workflow WorkflowDef `yaml:"workflow" hcl:"workflow,block"`
}

// WorkflowDef is the top-level graph.
type WorkflowDef struct {
	Name        string        `yaml:"name" hcl:"name,label"`
	Description string        `yaml:"description" hcl:"description,optional"`
	Dispatch    *DispatchConf `yaml:"dispatch" hcl:"dispatch,block"`
	Nodes       []NodeDef     `yaml:"nodes" hcl:"node,block"`
	Edges       []EdgeDef     `yaml:"edges" hcl:"edge,block"`
}

// DispatchConf holds tunable concurrency settings for walking a plan.
type DispatchConf struct {
	Workers    int `yaml:"workers" hcl:"workers,optional" json:"workers"`
	QueueDepth int `yaml:"queue_depth" hcl:"queue_depth,optional" json:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms" hcl:"timeout_ms,optional" json:"timeout_ms"`
}

// NodeDef is a discriminated union: exactly one of Task, Pipeline, Groups
// or SubDAG is set. Pipeline steps, group members and sub-DAG nodes are
// NodeDefs themselves, so condensed nodes nest.
type NodeDef struct {
	Name     string       `yaml:"name" hcl:"name,label"`
	Task     *TaskDef     `yaml:"task,omitempty" hcl:"task,block"`
	Pipeline *PipelineDef `yaml:"pipeline,omitempty" hcl:"pipeline,block"`
	Groups   []GroupDef   `yaml:"groups,omitempty" hcl:"group,block"`
	SubDAG   *SubDAGDef   `yaml:"subdag,omitempty" hcl:"subdag,block"`
}

// TaskDef is an opaque unit of work. Its fields are carried, not interpreted.
type TaskDef struct {
	Run    string            `yaml:"run" hcl:"run,optional"`
	Params map[string]string `yaml:"params" hcl:"params,optional"`
}

// PipelineDef is a strict chain of steps.
type PipelineDef struct {
	Steps []NodeDef `yaml:"steps" hcl:"step,block"`
}

// GroupDef is a set of independent members that may run concurrently.
type GroupDef struct {
	ID        string    `yaml:"id" hcl:"id,label"`
	DependsOn string    `yaml:"depends_on" hcl:"depends_on,optional"`
	Members   []NodeDef `yaml:"members" hcl:"member,block"`
}

// SubDAGDef is an arbitrary nested graph.
type SubDAGDef struct {
	Nodes []NodeDef `yaml:"nodes" hcl:"node,block"`
	Edges []EdgeDef `yaml:"edges" hcl:"edge,block"`
}

// EdgeDef says To runs after From.
type EdgeDef struct {
	From string `yaml:"from" hcl:"from"`
	To   string `yaml:"to" hcl:"to"`
}
