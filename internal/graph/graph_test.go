package graph

import (
	"math/rand"
	"testing"

	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/pkg/models"
)

func mustAdd(t *testing.T, f *flow.Flow, task *models.Task) {
	t.Helper()
	if _, err := f.AddTask(task); err != nil {
		t.Fatalf("add task %s: %v", task.ID, err)
	}
}

func chain(t *testing.T) *flow.Flow {
	t.Helper()
	f := flow.New("chain")
	mustAdd(t, f, &models.Task{ID: "topic", Objective: "pick topic", ResultType: models.StringType()})
	mustAdd(t, f, &models.Task{
		ID: "outline", Objective: "write outline", ResultType: models.StringType(),
		Context: map[string]models.ContextValue{"topic": models.Ref("topic")},
	})
	mustAdd(t, f, &models.Task{
		ID: "draft", Objective: "write draft", ResultType: models.StringType(),
		Context: map[string]models.ContextValue{"outline": models.Ref("outline")},
	})
	return f
}

func TestBuildDetectsCycle(t *testing.T) {
	f := flow.New("cyclic")
	mustAdd(t, f, &models.Task{ID: "a", Objective: "a", ResultType: models.NoneType(), DependsOn: []string{"b"}})
	mustAdd(t, f, &models.Task{ID: "b", Objective: "b", ResultType: models.NoneType(), DependsOn: []string{"a"}})

	_, err := Build(f)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !flow.IsKind(err, flow.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	f := flow.New("dangling")
	mustAdd(t, f, &models.Task{ID: "a", Objective: "a", ResultType: models.NoneType(), DependsOn: []string{"ghost"}})

	if _, err := Build(f); !flow.IsKind(err, flow.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestReadyRespectsDependencies(t *testing.T) {
	f := chain(t)
	g, err := Build(f)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "topic" {
		t.Fatalf("expected only topic ready, got %v", ready)
	}

	f.Task("topic").Status = models.TaskStatusSuccessful
	f.Task("topic").Result = "AI"

	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "outline" {
		t.Fatalf("expected only outline ready, got %v", ready)
	}
}

func TestResolveContextValues(t *testing.T) {
	f := flow.New("ctx")
	mustAdd(t, f, &models.Task{ID: "src", Objective: "src", ResultType: models.StringType()})
	mustAdd(t, f, &models.Task{
		ID: "dst", Objective: "dst", ResultType: models.StringType(),
		Context: map[string]models.ContextValue{
			"upstream": models.Ref("src"),
			"limit":    models.Literal(10),
		},
	})
	g, err := Build(f)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	dst := f.Task("dst")
	if res := g.ResolveContext(dst); res.State != Pending {
		t.Errorf("expected Pending before src completes, got %v", res.State)
	}

	f.Task("src").Status = models.TaskStatusSuccessful
	f.Task("src").Result = "value"

	res := g.ResolveContext(dst)
	if res.State != Resolved {
		t.Fatalf("expected Resolved, got %v", res.State)
	}
	if res.Values["upstream"] != "value" || res.Values["limit"] != 10 {
		t.Errorf("unexpected resolved values: %v", res.Values)
	}
}

func TestPropagateSkipsTransitively(t *testing.T) {
	f := chain(t)
	g, err := Build(f)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	topic := f.Task("topic")
	topic.Status = models.TaskStatusRunning
	if err := topic.MarkFailed("boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	skipped := g.PropagateSkips()
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped tasks, got %d", len(skipped))
	}
	for _, id := range []string{"outline", "draft"} {
		task := f.Task(id)
		if task.Status != models.TaskStatusSkipped {
			t.Errorf("task %s: expected skipped, got %s", id, task.Status)
		}
		if task.Error == "" {
			t.Errorf("task %s: expected a skip cause", id)
		}
	}
	if len(g.Ready()) != 0 {
		t.Error("no tasks should be ready after full propagation")
	}
}

func TestDependents(t *testing.T) {
	f := chain(t)
	g, err := Build(f)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	deps := g.Dependents("topic")
	if len(deps) != 1 || deps[0] != "outline" {
		t.Errorf("expected [outline], got %v", deps)
	}
}

// Property: over random acyclic graphs, a task is never reported ready
// while any dependency is non-successful.
func TestReadyInvariantRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		f := flow.New("random")
		n := 4 + rng.Intn(8)
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			ids[i] = string(rune('a' + i))
			task := &models.Task{ID: ids[i], Objective: "t", ResultType: models.NoneType()}
			// Edges only point at earlier tasks, so the graph is acyclic.
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					task.DependsOn = append(task.DependsOn, ids[j])
				}
			}
			mustAdd(t, f, task)
		}

		g, err := Build(f)
		if err != nil {
			t.Fatalf("trial %d: build: %v", trial, err)
		}

		// Randomly complete some tasks, then check the invariant.
		for _, id := range ids {
			if rng.Intn(2) == 0 {
				f.Task(id).Status = models.TaskStatusSuccessful
			}
		}
		for _, task := range g.Ready() {
			for _, depID := range task.DependsOn {
				if f.Task(depID).Status != models.TaskStatusSuccessful {
					t.Fatalf("trial %d: task %s ready with incomplete dependency %s", trial, task.ID, depID)
				}
			}
		}
	}
}
