package dag_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gyaneshwarpardhi/flowdag/internal/dag"
)

func TestSyncGraph_ConcurrentEdges(t *testing.T) {
	const n = 20
	sg := dag.NewSyncGraph(dag.NewGraph(quiet()))
	for i := 0; i < n; i++ {
		sg.AddNode(fmt.Sprintf("n%02d", i), dag.TaskPayload(i))
	}

	// Every ordered pair is attempted from its own goroutine; whichever
	// direction wins, the graph must stay acyclic.
	var wg sync.WaitGroup
	errC := make(chan error, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			wg.Add(1)
			go func(src, dest string) {
				defer wg.Done()
				if err := sg.AddEdge(src, dest); err != nil && !errors.Is(err, dag.ErrCycleRejected) {
					errC <- err
				}
			}(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j))
		}
	}
	wg.Wait()
	close(errC)
	for err := range errC {
		t.Errorf("unexpected error: %v", err)
	}

	if sg.DetectCycle() {
		t.Fatal("concurrent inserts produced a cycle")
	}
	order := sg.TopologicalSort()
	if len(order) != sg.Len() {
		t.Fatalf("order has %d nodes, graph has %d", len(order), sg.Len())
	}
	sg.View(func(g *dag.Graph) {
		assertTopological(t, g.Edges(), order)
	})
}

func TestSyncCondensedNode_ConcurrentPipelineAndGroups(t *testing.T) {
	const n = 16
	cn, err := dag.NewCondensedNode("pipe", dag.KindPipeline, quiet())
	if err != nil {
		t.Fatal(err)
	}
	sp := dag.NewSyncCondensedNode(cn)

	// Concurrent appends to one pipeline must still form a single chain.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := sp.AddSubNode(fmt.Sprintf("s%02d", i), dag.TaskPayload(i)); err != nil {
				t.Errorf("AddSubNode: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if sp.Size() != n || sp.DetectCycle() {
		t.Fatalf("size=%d cycle=%v", sp.Size(), sp.DetectCycle())
	}
	sp.View(func(cn *dag.CondensedNode) {
		order := cn.TopologicalSort()
		if len(cn.Edges()) != n-1 {
			t.Errorf("expected %d chain edges, got %d", n-1, len(cn.Edges()))
		}
		for i := 1; i < len(order); i++ {
			if got := cn.Successors(order[i-1]); len(got) != 1 || got[0] != order[i] {
				t.Errorf("%s → %v, want %s", order[i-1], got, order[i])
			}
		}
	})

	gn, err := dag.NewCondensedNode("fan", dag.KindGroup, quiet())
	if err != nil {
		t.Fatal(err)
	}
	sg := dag.NewSyncCondensedNode(gn)

	// Every goroutine races for the same id; exactly one may win.
	var wins atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := sg.AddGroup("g", "", []string{"a", "b"}, tasks(i, i))
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, dag.ErrDuplicateGroupID):
				t.Errorf("AddGroup: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected one accepted group, got %d", wins.Load())
	}
	if _, ok, err := sg.GetGroup("g"); !ok || err != nil {
		t.Errorf("GetGroup: ok=%v err=%v", ok, err)
	}
}
