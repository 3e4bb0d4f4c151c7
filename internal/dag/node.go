package dag

import "fmt"

// PayloadKind discriminates the three kinds of node payloads.
type PayloadKind int

const (
	PayloadTask PayloadKind = iota
	PayloadGroup
	PayloadNested
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadTask:
		return "task"
	case PayloadGroup:
		return "group"
	case PayloadNested:
		return "nested"
	}
	return fmt.Sprintf("PayloadKind(%d)", int(k))
}

// Payload is the value stored at a node. Exactly one of the variants is set,
// selected by Kind, so consumers can dispatch without type switches on the
// caller's task values.
type Payload struct {
	kind   PayloadKind
	task   any
	group  *GroupAggregate
	nested *CondensedNode
}

// TaskPayload wraps an opaque caller value. The core never inspects it.
func TaskPayload(v any) Payload {
	return Payload{kind: PayloadTask, task: v}
}

// GroupPayload wraps a group aggregate.
func GroupPayload(g *GroupAggregate) Payload {
	return Payload{kind: PayloadGroup, group: g}
}

// NestedPayload embeds a condensed node as a single node of a parent graph.
func NestedPayload(cn *CondensedNode) Payload {
	return Payload{kind: PayloadNested, nested: cn}
}

func (p Payload) Kind() PayloadKind { return p.kind }

// Task returns the task value and true if p is a task payload.
func (p Payload) Task() (any, bool) {
	return p.task, p.kind == PayloadTask
}

// Group returns the aggregate and true if p is a group payload.
func (p Payload) Group() (*GroupAggregate, bool) {
	return p.group, p.kind == PayloadGroup
}

// Nested returns the condensed node and true if p is a nested payload.
func (p Payload) Nested() (*CondensedNode, bool) {
	return p.nested, p.kind == PayloadNested
}

// typeTag describes the payload for diagnostics.
func (p Payload) typeTag() string {
	switch p.kind {
	case PayloadTask:
		return fmt.Sprintf("task(%T)", p.task)
	case PayloadGroup:
		return fmt.Sprintf("group(%d members)", p.group.Len())
	case PayloadNested:
		if p.nested == nil {
			return "nested(nil)"
		}
		return fmt.Sprintf("nested(%s)", p.nested.Kind())
	}
	return p.kind.String()
}

// -----------------------------------------------------------------------
// GroupAggregate
// -----------------------------------------------------------------------

// GroupAggregate is the ordered member set of one group. Members are never
// nodes of the enclosing graph, so they cannot be wired to each other.
type GroupAggregate struct {
	names  []string
	values map[string]Payload
}

func newGroupAggregate(n int) *GroupAggregate {
	return &GroupAggregate{
		names:  make([]string, 0, n),
		values: make(map[string]Payload, n),
	}
}

// Len returns the number of members; a nil aggregate has none.
func (g *GroupAggregate) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Names returns member names in insertion order.
func (g *GroupAggregate) Names() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Get returns the payload of a member.
func (g *GroupAggregate) Get(name string) (Payload, bool) {
	if g == nil {
		return Payload{}, false
	}
	p, ok := g.values[name]
	return p, ok
}
