package flowfile

import (
	"strings"
	"testing"

	"github.com/thomascherickal/agentflow/pkg/models"
)

const essayFlow = `
name: essay
context:
  audience: beginners
agents:
  - name: researcher
    description: finds facts
  - name: writer
    instructions: keep it short
tasks:
  - id: topic
    objective: pick a topic
    result_type: string
    agents: [researcher]
  - id: outline
    objective: outline the essay
    result_type:
      record:
        title: string
        sections: int
    context:
      topic: "$task:topic"
    agents: [writer]
  - id: draft
    objective: write the draft
    instructions: use the outline verbatim
    result_type: string
    context:
      outline: "$task:outline"
      style: casual
    agents: [writer]
    turn_budget: 5
    user_access: true
result: "$task:draft"
`

func TestParseAndCompile(t *testing.T) {
	f, err := Parse([]byte(essayFlow))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fl, agents, err := f.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if fl.Name() != "essay" {
		t.Errorf("flow name: %s", fl.Name())
	}
	if len(agents) != 2 || agents[0].Name != "researcher" || agents[1].Name != "writer" {
		t.Errorf("agents mismatch: %+v", agents)
	}
	if fl.Len() != 3 {
		t.Fatalf("expected 3 tasks, got %d", fl.Len())
	}
	if got := fl.ContextValues()["audience"]; got != "beginners" {
		t.Errorf("flow context not carried: %v", got)
	}

	outline := fl.Task("outline")
	if outline.ResultType.Kind != models.KindRecord {
		t.Errorf("expected record result type, got %s", outline.ResultType.Kind)
	}
	if len(outline.DependsOn) != 1 || outline.DependsOn[0] != "topic" {
		t.Errorf("expected dependency derived from $task ref, got %v", outline.DependsOn)
	}

	draft := fl.Task("draft")
	if draft.TurnBudget != 5 || !draft.UserAccess {
		t.Errorf("task settings not carried: %+v", draft)
	}
	if draft.Context["style"].TaskID != "" || draft.Context["style"].Literal != "casual" {
		t.Errorf("literal context value mangled: %+v", draft.Context["style"])
	}
	if draft.Context["outline"].TaskID != "outline" {
		t.Errorf("ref context value mangled: %+v", draft.Context["outline"])
	}
	if draft.Instructions != "use the outline verbatim" {
		t.Errorf("instructions not carried: %q", draft.Instructions)
	}

	if fl.Result().TaskID != "draft" {
		t.Errorf("flow result ref not carried: %+v", fl.Result())
	}
}

func TestParseResultTypes(t *testing.T) {
	cases := []struct {
		in   any
		kind models.ResultKind
	}{
		{nil, models.KindNone},
		{"none", models.KindNone},
		{"string", models.KindString},
		{"int", models.KindInt},
		{"float", models.KindFloat},
		{"bool", models.KindBool},
		{map[string]any{"enum": []any{"a", "b"}}, models.KindEnum},
	}
	for _, tc := range cases {
		rt, err := parseResultType(tc.in)
		if err != nil {
			t.Errorf("%v: %v", tc.in, err)
			continue
		}
		if rt.Kind != tc.kind {
			t.Errorf("%v: expected %s, got %s", tc.in, tc.kind, rt.Kind)
		}
	}
}

func TestParseResultTypeErrors(t *testing.T) {
	for _, in := range []any{
		"regex",
		42,
		map[string]any{"union": []any{}},
		map[string]any{"enum": "not-a-list"},
		map[string]any{"record": "not-a-map"},
	} {
		if _, err := parseResultType(in); err == nil {
			t.Errorf("expected error for %v", in)
		}
	}
}

func TestCompileUnknownAgent(t *testing.T) {
	f, err := Parse([]byte(`
name: bad
tasks:
  - id: t1
    objective: x
    agents: [ghost]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, _, err := f.Compile(); err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestCompileUnknownResultRef(t *testing.T) {
	f, err := Parse([]byte(`
name: bad
tasks:
  - id: t1
    objective: x
result: "$task:missing"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, _, err := f.Compile(); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown result ref error, got %v", err)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte(`name: empty`)); err == nil {
		t.Fatal("expected error for flow without tasks")
	}
	if _, err := Parse([]byte(`tasks: [{id: t1, objective: x}]`)); err == nil {
		t.Fatal("expected error for flow without name")
	}
}
