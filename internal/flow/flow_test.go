package flow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/thomascherickal/agentflow/pkg/models"
)

func TestAddTaskDerivesDependencies(t *testing.T) {
	f := New("test")

	topicID, err := f.AddTask(&models.Task{
		ID:         "topic",
		Objective:  "Pick a topic",
		ResultType: models.StringType(),
	})
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}

	outlineID, err := f.AddTask(&models.Task{
		ID:         "outline",
		Objective:  "Write an outline",
		ResultType: models.StringType(),
		Context: map[string]models.ContextValue{
			"topic": models.Ref(topicID),
			"style": models.Literal("brief"),
		},
	})
	if err != nil {
		t.Fatalf("add outline: %v", err)
	}

	outline := f.Task(outlineID)
	if !reflect.DeepEqual(outline.DependsOn, []string{"topic"}) {
		t.Errorf("expected depends_on [topic], got %v", outline.DependsOn)
	}
}

func TestAddTaskRejectsDuplicateID(t *testing.T) {
	f := New("test")

	task := &models.Task{ID: "a", Objective: "first", ResultType: models.NoneType()}
	if _, err := f.AddTask(task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := &models.Task{ID: "a", Objective: "second", ResultType: models.NoneType()}
	_, err := f.AddTask(dup)
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestAddTaskRejectsMalformedResultType(t *testing.T) {
	f := New("test")

	task := &models.Task{
		ID:         "bad",
		Objective:  "bad result type",
		ResultType: models.ResultType{Kind: models.KindEnum}, // no members
	}
	if _, err := f.AddTask(task); !IsKind(err, KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestHistoryOrdering(t *testing.T) {
	f := New("test")

	first := f.AppendHistory(models.HistoryEntry{Kind: models.HistoryMessage, Content: "one"})
	second := f.AppendHistory(models.HistoryEntry{Kind: models.HistoryMessage, Content: "two"})

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}

	history := f.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Content != "one" || history[1].Content != "two" {
		t.Errorf("history out of order: %v", history)
	}
}

func TestInstructionStackScopedPop(t *testing.T) {
	f := New("test")

	pop1 := f.PushInstruction("outer")
	pop2 := f.PushInstruction("inner")

	if got := f.Instructions(); len(got) != 2 || got[0] != "outer" || got[1] != "inner" {
		t.Fatalf("unexpected stack: %v", got)
	}

	pop2()
	if got := f.Instructions(); len(got) != 1 || got[0] != "outer" {
		t.Errorf("expected [outer], got %v", got)
	}

	// Popping twice is a no-op.
	pop2()
	if got := f.Instructions(); len(got) != 1 {
		t.Errorf("double pop changed stack: %v", got)
	}

	pop1()
	if got := f.Instructions(); len(got) != 0 {
		t.Errorf("expected empty stack, got %v", got)
	}
}

func TestInstructionStackPopUnderEarlyReturn(t *testing.T) {
	f := New("test")

	func() {
		defer f.PushInstruction("scoped")()
		if got := f.Instructions(); len(got) != 1 {
			t.Fatalf("expected 1 instruction inside block, got %v", got)
		}
	}()

	if got := f.Instructions(); len(got) != 0 {
		t.Errorf("instruction leaked past block exit: %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := New("roundtrip")
	if _, err := f.AddTask(&models.Task{ID: "t1", Objective: "one", ResultType: models.StringType()}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	f.Task("t1").Status = models.TaskStatusSuccessful
	f.Task("t1").Result = "done"
	f.AppendHistory(models.HistoryEntry{Kind: models.HistoryMessage, Content: "hello"})
	f.PushInstruction("be brief")
	f.SetContext("project", "demo")
	f.SetResult(models.Ref("t1"))

	restored := Restore(f.Snapshot())

	if restored.ID() != f.ID() || restored.Name() != f.Name() {
		t.Errorf("identity mismatch: %s/%s", restored.ID(), restored.Name())
	}
	if got := restored.Task("t1"); got == nil || got.Result != "done" {
		t.Errorf("task not restored: %+v", got)
	}
	if got := restored.History(); len(got) != 1 || got[0].Content != "hello" {
		t.Errorf("history not restored: %v", got)
	}
	if got := restored.Instructions(); len(got) != 1 || got[0] != "be brief" {
		t.Errorf("instructions not restored: %v", got)
	}
	if got := restored.Result(); got.TaskID != "t1" {
		t.Errorf("result ref not restored: %+v", got)
	}

	// Sequence numbers continue after the restored history.
	e := restored.AppendHistory(models.HistoryEntry{Kind: models.HistoryMessage, Content: "next"})
	if e.Seq != 2 {
		t.Errorf("expected seq 2 after restore, got %d", e.Seq)
	}
}
