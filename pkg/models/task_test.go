package models

import (
	"errors"
	"strings"
	"testing"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{TaskStatusPending, TaskStatusRunning, TaskStatusSuccessful, TaskStatusFailed, TaskStatusSkipped}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if TaskStatus("bogus").Valid() {
		t.Error("expected bogus status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if TaskStatusPending.Terminal() || TaskStatusRunning.Terminal() {
		t.Error("pending/running must not be terminal")
	}
	for _, s := range []TaskStatus{TaskStatusSuccessful, TaskStatusFailed, TaskStatusSkipped} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}

func TestLegalTransitions(t *testing.T) {
	task := &Task{ID: "t", Objective: "test", Status: TaskStatusPending}

	if err := task.Transition(TaskStatusRunning); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	// A turn can end without a terminal decision.
	if err := task.Transition(TaskStatusPending); err != nil {
		t.Fatalf("running -> pending: %v", err)
	}
	if err := task.Transition(TaskStatusRunning); err != nil {
		t.Fatalf("pending -> running again: %v", err)
	}
	if err := task.MarkSuccessful("done"); err != nil {
		t.Fatalf("running -> successful: %v", err)
	}
}

func TestIllegalTransitionsFailFast(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
	}{
		{TaskStatusPending, TaskStatusSuccessful},
		{TaskStatusPending, TaskStatusFailed},
		{TaskStatusSuccessful, TaskStatusRunning},
		{TaskStatusSuccessful, TaskStatusFailed},
		{TaskStatusFailed, TaskStatusPending},
		{TaskStatusSkipped, TaskStatusRunning},
	}

	for _, c := range cases {
		task := &Task{ID: "t", Objective: "test", Status: c.from}
		err := task.Transition(c.to)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", c.from, c.to, err)
		}
	}
}

func TestTerminalStateImmutable(t *testing.T) {
	task := &Task{ID: "t", Objective: "test", Status: TaskStatusRunning}
	if err := task.MarkSuccessful("first"); err != nil {
		t.Fatalf("mark successful: %v", err)
	}
	if err := task.MarkSuccessful("second"); err == nil {
		t.Fatal("expected error re-marking a successful task")
	}
	if task.Result != "first" {
		t.Errorf("result mutated after terminal state: %v", task.Result)
	}
}

func TestFriendlyNameTruncates(t *testing.T) {
	task := &Task{ID: "abc", Objective: strings.Repeat("x", 80)}
	name := task.FriendlyName()
	if !strings.Contains(name, "...") {
		t.Errorf("expected truncated objective in %q", name)
	}
	if !strings.Contains(name, "abc") {
		t.Errorf("expected id in %q", name)
	}
}

func TestResultTypeCheck(t *testing.T) {
	good := []ResultType{
		NoneType(), StringType(), IntType(), FloatType(), BoolType(),
		EnumType("a", "b"),
		RecordType(Field{Name: "x", Type: StringType()}),
	}
	for _, rt := range good {
		if err := rt.Check(); err != nil {
			t.Errorf("%s: unexpected error: %v", rt, err)
		}
	}

	bad := []ResultType{
		{Kind: KindEnum},
		{Kind: KindEnum, Members: []string{"a", "a"}},
		{Kind: KindRecord},
		{Kind: KindRecord, Fields: []Field{{Name: "", Type: StringType()}}},
		{Kind: KindRecord, Fields: []Field{{Name: "x", Type: NoneType()}}},
		{Kind: "mystery"},
		{Kind: KindString, Members: []string{"a"}},
	}
	for _, rt := range bad {
		if err := rt.Check(); err == nil {
			t.Errorf("%+v: expected error", rt)
		}
	}
}

func TestContextValueRef(t *testing.T) {
	if !Ref("t1").IsRef() {
		t.Error("Ref should be a reference")
	}
	if Literal(5).IsRef() {
		t.Error("Literal should not be a reference")
	}
}
