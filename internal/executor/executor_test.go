package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/internal/graph"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// stubRunner returns scripted actions in order, then repeats the last.
type stubRunner struct {
	actions []models.Action
	views   []TurnView
	err     error
	calls   int
}

func (s *stubRunner) PerformTurn(ctx context.Context, view TurnView) (models.Action, error) {
	s.calls++
	s.views = append(s.views, view)
	if s.err != nil {
		return models.Action{}, s.err
	}
	i := s.calls - 1
	if i >= len(s.actions) {
		i = len(s.actions) - 1
	}
	return s.actions[i], nil
}

type stubTools struct {
	result any
	err    error
	calls  []string
}

func (s *stubTools) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	s.calls = append(s.calls, name)
	return s.result, s.err
}

type stubUser struct {
	available bool
	text      string
	err       error
}

func (s *stubUser) Available() bool { return s.available }
func (s *stubUser) Fetch(ctx context.Context, prompt string) (string, error) {
	return s.text, s.err
}

func singleTaskFlow(t *testing.T, task *models.Task) (*flow.Flow, *graph.Graph) {
	t.Helper()
	f := flow.New("test")
	if _, err := f.AddTask(task); err != nil {
		t.Fatalf("add task: %v", err)
	}
	g, err := graph.Build(f)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return f, g
}

func newExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return e
}

func findEntry(history []models.HistoryEntry, kind models.HistoryKind) *models.HistoryEntry {
	for i := range history {
		if history[i].Kind == kind {
			return &history[i]
		}
	}
	return nil
}

func TestMarkSuccessfulValidPayload(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "produce a string", ResultType: models.StringType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.MarkSuccessful("t1", "hello")}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: 3})

	outcome, err := e.RunTurn(context.Background(), models.Agent{Name: "writer"}, []*models.Task{task}, g, f)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if task.Status != models.TaskStatusSuccessful {
		t.Fatalf("expected successful, got %s", task.Status)
	}
	if task.Result != "hello" {
		t.Errorf("expected result hello, got %v", task.Result)
	}
	if len(outcome.Terminal) != 1 || outcome.Terminal[0] != "t1" {
		t.Errorf("expected terminal [t1], got %v", outcome.Terminal)
	}
	if task.Turns != 1 {
		t.Errorf("expected 1 turn consumed, got %d", task.Turns)
	}
	if entry := findEntry(f.History(), models.HistoryTaskResult); entry == nil {
		t.Error("expected a task_result history entry")
	}
}

func TestMarkSuccessfulInvalidPayloadIsFeedback(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "produce a string", ResultType: models.StringType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.MarkSuccessful("t1", 42)}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: 3})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "writer"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	// Task stays eligible; the error went into history as feedback.
	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending after rejected payload, got %s", task.Status)
	}
	entry := findEntry(f.History(), models.HistoryFeedback)
	if entry == nil {
		t.Fatal("expected a feedback history entry")
	}
	if !strings.Contains(entry.Content, "rejected") {
		t.Errorf("unexpected feedback content: %q", entry.Content)
	}
}

func TestMarkSuccessfulThenRetryWithinBudget(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "produce a string", ResultType: models.StringType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{
		models.MarkSuccessful("t1", 42),      // rejected
		models.MarkSuccessful("t1", "fixed"), // accepted on retry
	}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: 3})
	agent := models.Agent{Name: "writer"}

	if _, err := e.RunTurn(context.Background(), agent, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := e.RunTurn(context.Background(), agent, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if task.Status != models.TaskStatusSuccessful || task.Result != "fixed" {
		t.Errorf("expected successful with result fixed, got %s %v", task.Status, task.Result)
	}
	if task.Turns != 2 {
		t.Errorf("expected 2 turns consumed, got %d", task.Turns)
	}
}

func TestMarkFailed(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "doomed", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.MarkFailed("t1", "tool broke")}}
	e := newExecutor(t, Config{Runner: runner})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Error != "tool broke" {
		t.Errorf("expected recorded reason, got %q", task.Error)
	}
}

func TestPostMessageKeepsTaskEligible(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "chat", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.PostMessage("thinking...")}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: 5})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending after message-only turn, got %s", task.Status)
	}
	entry := findEntry(f.History(), models.HistoryMessage)
	if entry == nil || entry.Content != "thinking..." {
		t.Errorf("expected posted message in history, got %+v", entry)
	}
}

// A stub agent that never completes must exhaust the budget and fail the
// task after exactly the configured number of turns.
func TestTurnBudgetEnforcement(t *testing.T) {
	const budget = 3
	task := &models.Task{ID: "t1", Objective: "never done", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.PostMessage("still thinking")}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: budget})
	agent := models.Agent{Name: "a"}

	for i := 0; i < budget; i++ {
		if task.Status.Terminal() {
			t.Fatalf("task terminal after %d turns, before budget", i)
		}
		if _, err := e.RunTurn(context.Background(), agent, []*models.Task{task}, g, f); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}

	if task.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed after %d turns, got %s", budget, task.Status)
	}
	if task.Error != TurnBudgetExceeded {
		t.Errorf("expected cause %q, got %q", TurnBudgetExceeded, task.Error)
	}
	if runner.calls != budget {
		t.Errorf("expected exactly %d turns, got %d", budget, runner.calls)
	}
}

func TestTransportErrorCountsAgainstBudget(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "flaky", ResultType: models.NoneType(), TurnBudget: 2}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{err: errors.New("connection reset")}
	e := newExecutor(t, Config{Runner: runner})
	agent := models.Agent{Name: "a"}

	outcome, err := e.RunTurn(context.Background(), agent, []*models.Task{task}, g, f)
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if outcome.TransportErr == nil {
		t.Fatal("expected transport error in outcome")
	}
	if !flow.IsKind(outcome.TransportErr, flow.KindTransport) {
		t.Errorf("expected transport kind, got %v", outcome.TransportErr)
	}
	if task.Status != models.TaskStatusPending {
		t.Fatalf("expected pending after first transport failure, got %s", task.Status)
	}

	if _, err := e.RunTurn(context.Background(), agent, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed after budget exhausted, got %s", task.Status)
	}
	if !strings.Contains(task.Error, TurnBudgetExceeded) {
		t.Errorf("expected budget cause, got %q", task.Error)
	}
}

func TestCallToolValidArguments(t *testing.T) {
	tool := models.Tool{
		Name:        "search",
		Description: "search the corpus",
		Input: models.RecordType(
			models.Field{Name: "query", Type: models.StringType()},
		),
	}
	task := &models.Task{ID: "t1", Objective: "research", ResultType: models.NoneType(), Tools: []models.Tool{tool}}
	f, g := singleTaskFlow(t, task)

	tools := &stubTools{result: "three results"}
	runner := &stubRunner{actions: []models.Action{
		models.CallTool("search", map[string]any{"query": "go"}),
	}}
	e := newExecutor(t, Config{Runner: runner, Tools: tools})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if len(tools.calls) != 1 || tools.calls[0] != "search" {
		t.Fatalf("expected one search invocation, got %v", tools.calls)
	}
	entry := findEntry(f.History(), models.HistoryToolResult)
	if entry == nil || entry.IsError {
		t.Fatalf("expected successful tool result entry, got %+v", entry)
	}
	if entry.Value != "three results" {
		t.Errorf("expected tool result in history, got %v", entry.Value)
	}
}

func TestCallToolSchemaMismatchSkipsInvocation(t *testing.T) {
	tool := models.Tool{
		Name:  "search",
		Input: models.RecordType(models.Field{Name: "query", Type: models.StringType()}),
	}
	task := &models.Task{ID: "t1", Objective: "research", ResultType: models.NoneType(), Tools: []models.Tool{tool}}
	f, g := singleTaskFlow(t, task)

	tools := &stubTools{}
	runner := &stubRunner{actions: []models.Action{
		models.CallTool("search", map[string]any{"query": 7}),
	}}
	e := newExecutor(t, Config{Runner: runner, Tools: tools})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if len(tools.calls) != 0 {
		t.Errorf("tool must not be invoked on schema mismatch, got %v", tools.calls)
	}
	if findEntry(f.History(), models.HistoryFeedback) == nil {
		t.Error("expected feedback entry for rejected arguments")
	}
}

func TestCallToolUnknownName(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "research", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.CallTool("nonexistent", nil)}}
	e := newExecutor(t, Config{Runner: runner, Tools: &stubTools{}})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if findEntry(f.History(), models.HistoryFeedback) == nil {
		t.Error("expected feedback entry for unknown tool")
	}
}

func TestRequestUserInputRequiresAccess(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "ask", ResultType: models.NoneType()} // no user access
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.RequestUserInput("t1", "what color?")}}
	e := newExecutor(t, Config{Runner: runner, User: &stubUser{available: true, text: "blue"}})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if findEntry(f.History(), models.HistoryUserInput) != nil {
		t.Error("user input must not be fetched without user_access")
	}
	if findEntry(f.History(), models.HistoryFeedback) == nil {
		t.Error("expected feedback entry for denied user input")
	}
}

func TestRequestUserInputFetches(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "ask", ResultType: models.NoneType(), UserAccess: true}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.RequestUserInput("t1", "what color?")}}
	e := newExecutor(t, Config{Runner: runner, User: &stubUser{available: true, text: "blue"}})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	entry := findEntry(f.History(), models.HistoryUserInput)
	if entry == nil || entry.Content != "blue" {
		t.Errorf("expected user input entry with text, got %+v", entry)
	}
}

func TestMarkSuccessfulWrongTaskIsFeedback(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "real", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)

	runner := &stubRunner{actions: []models.Action{models.MarkSuccessful("other", nil)}}
	e := newExecutor(t, Config{Runner: runner})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if findEntry(f.History(), models.HistoryFeedback) == nil {
		t.Error("expected feedback entry for ineligible task")
	}
}

// Two independent ready tasks dispatched in one turn each get their own
// correctly scoped context view.
func TestGroupedTurnViews(t *testing.T) {
	f := flow.New("grouped")
	if _, err := f.AddTask(&models.Task{
		ID: "a", Objective: "first", ResultType: models.StringType(),
		Context: map[string]models.ContextValue{"n": models.Literal(1)},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.AddTask(&models.Task{
		ID: "b", Objective: "second", ResultType: models.StringType(),
		Context: map[string]models.ContextValue{"n": models.Literal(2)},
	}); err != nil {
		t.Fatal(err)
	}
	g, err := graph.Build(f)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	runner := &stubRunner{actions: []models.Action{models.PostMessage("ok")}}
	e := newExecutor(t, Config{Runner: runner, TurnBudget: 5})

	tasks := []*models.Task{f.Task("a"), f.Task("b")}
	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "shared"}, tasks, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	if len(runner.views) != 1 {
		t.Fatalf("expected a single turn, got %d", len(runner.views))
	}
	view := runner.views[0]
	if len(view.ReadyTasks) != 2 {
		t.Fatalf("expected 2 ready tasks in view, got %d", len(view.ReadyTasks))
	}
	byID := map[string]TaskView{}
	for _, tv := range view.ReadyTasks {
		byID[tv.ID] = tv
	}
	if byID["a"].Context["n"] != 1 || byID["b"].Context["n"] != 2 {
		t.Errorf("context views not independently scoped: %v / %v", byID["a"].Context, byID["b"].Context)
	}
}

func TestViewIncludesInstructionsAndHistory(t *testing.T) {
	task := &models.Task{ID: "t1", Objective: "observe", ResultType: models.NoneType()}
	f, g := singleTaskFlow(t, task)
	f.PushInstruction("be terse")
	f.AppendHistory(models.HistoryEntry{Kind: models.HistoryMessage, Agent: "earlier", Content: "prior message"})

	runner := &stubRunner{actions: []models.Action{models.PostMessage("ok")}}
	e := newExecutor(t, Config{Runner: runner})

	if _, err := e.RunTurn(context.Background(), models.Agent{Name: "a", Instructions: "private"}, []*models.Task{task}, g, f); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	view := runner.views[0]
	if len(view.Instructions) != 1 || view.Instructions[0] != "be terse" {
		t.Errorf("expected ambient instructions in view, got %v", view.Instructions)
	}
	if view.Agent.Instructions != "private" {
		t.Errorf("expected agent instructions in view, got %q", view.Agent.Instructions)
	}
	if len(view.History) != 1 || view.History[0].Content != "prior message" {
		t.Errorf("expected prior history in view, got %v", view.History)
	}
}
