// Package flowfile loads declarative flow definitions from YAML and
// compiles them into a runnable flow. A definition names its agents and
// tasks; task context values may reference other tasks' results with the
// `$task:` prefix, which also creates a dependency.
package flowfile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thomascherickal/agentflow/internal/flow"
	"github.com/thomascherickal/agentflow/pkg/models"
)

// taskRefPrefix marks a context value as a reference to another task's
// result.
const taskRefPrefix = "$task:"

// File is a parsed flow definition.
type File struct {
	// Name is the flow's display name.
	Name string `yaml:"name"`
	// Context holds flow-wide shared values.
	Context map[string]any `yaml:"context"`
	// Agents are the agents available to tasks.
	Agents []AgentDef `yaml:"agents"`
	// Tasks are the flow's tasks, in definition order.
	Tasks []TaskDef `yaml:"tasks"`
	// Result optionally names the flow's result, usually a $task: ref.
	Result any `yaml:"result"`
}

// AgentDef declares an agent.
type AgentDef struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Instructions string `yaml:"instructions"`
	Model        string `yaml:"model"`
}

// TaskDef declares a task.
type TaskDef struct {
	ID           string         `yaml:"id"`
	Objective    string         `yaml:"objective"`
	Instructions string         `yaml:"instructions"`
	ResultType   any            `yaml:"result_type"`
	Context      map[string]any `yaml:"context"`
	Agents       []string       `yaml:"agents"`
	DependsOn    []string       `yaml:"depends_on"`
	UserAccess   bool           `yaml:"user_access"`
	TurnBudget   int            `yaml:"turn_budget"`
}

// Load reads and parses a flow definition from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return Parse(data)
}

// Parse parses a flow definition.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse flow file: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("flow file: missing name")
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("flow file %q: no tasks", f.Name)
	}
	return &f, nil
}

// Compile builds the flow and agent set from the definition. All
// declaration errors (unknown agents, malformed result types, bad
// references) surface here, before anything runs.
func (f *File) Compile() (*flow.Flow, []models.Agent, error) {
	agents := make([]models.Agent, 0, len(f.Agents))
	agentNames := make(map[string]bool, len(f.Agents))
	for _, def := range f.Agents {
		if def.Name == "" {
			return nil, nil, fmt.Errorf("flow %q: agent with empty name", f.Name)
		}
		if agentNames[def.Name] {
			return nil, nil, fmt.Errorf("flow %q: duplicate agent %q", f.Name, def.Name)
		}
		agentNames[def.Name] = true
		agents = append(agents, models.Agent{
			Name:         def.Name,
			Description:  def.Description,
			Instructions: def.Instructions,
			Model:        def.Model,
		})
	}

	fl := flow.New(f.Name)
	for key, value := range f.Context {
		fl.SetContext(key, value)
	}

	for _, def := range f.Tasks {
		if def.ID == "" {
			return nil, nil, fmt.Errorf("flow %q: task with empty id", f.Name)
		}
		for _, name := range def.Agents {
			if !agentNames[name] {
				return nil, nil, fmt.Errorf("task %q: unknown agent %q", def.ID, name)
			}
		}

		rt, err := parseResultType(def.ResultType)
		if err != nil {
			return nil, nil, fmt.Errorf("task %q: %w", def.ID, err)
		}

		context := make(map[string]models.ContextValue, len(def.Context))
		for key, value := range def.Context {
			context[key] = contextValue(value)
		}

		task := &models.Task{
			ID:           def.ID,
			Objective:    def.Objective,
			Instructions: def.Instructions,
			ResultType:   rt,
			Context:      context,
			Agents:       def.Agents,
			DependsOn:    def.DependsOn,
			UserAccess:   def.UserAccess,
			TurnBudget:   def.TurnBudget,
		}
		if _, err := fl.AddTask(task); err != nil {
			return nil, nil, err
		}
	}

	if f.Result != nil {
		cv := contextValue(f.Result)
		if cv.TaskID != "" && fl.Task(cv.TaskID) == nil {
			return nil, nil, fmt.Errorf("flow %q: result references unknown task %q", f.Name, cv.TaskID)
		}
		fl.SetResult(cv)
	}

	return fl, agents, nil
}

// contextValue interprets a YAML value as a literal or a $task: ref.
func contextValue(v any) models.ContextValue {
	if s, ok := v.(string); ok {
		if taskID, found := strings.CutPrefix(s, taskRefPrefix); found {
			return models.Ref(strings.TrimSpace(taskID))
		}
	}
	return models.Literal(v)
}

// parseResultType interprets the result_type field. Accepted forms:
//
//	result_type: string            # scalar kinds, or omitted for none
//	result_type:
//	  enum: [formal, casual]
//	result_type:
//	  record:
//	    title: string
//	    steps: int
func parseResultType(v any) (models.ResultType, error) {
	switch typed := v.(type) {
	case nil:
		return models.NoneType(), nil

	case string:
		switch typed {
		case "none", "":
			return models.NoneType(), nil
		case "string":
			return models.StringType(), nil
		case "int":
			return models.IntType(), nil
		case "float":
			return models.FloatType(), nil
		case "bool":
			return models.BoolType(), nil
		default:
			return models.ResultType{}, fmt.Errorf("unknown result type %q", typed)
		}

	case map[string]any:
		if members, ok := typed["enum"]; ok {
			list, ok := members.([]any)
			if !ok {
				return models.ResultType{}, fmt.Errorf("enum members must be a list")
			}
			strs := make([]string, 0, len(list))
			for _, m := range list {
				s, ok := m.(string)
				if !ok {
					return models.ResultType{}, fmt.Errorf("enum member %v is not a string", m)
				}
				strs = append(strs, s)
			}
			return models.EnumType(strs...), nil
		}
		if fields, ok := typed["record"]; ok {
			fieldMap, ok := fields.(map[string]any)
			if !ok {
				return models.ResultType{}, fmt.Errorf("record fields must be a map")
			}
			defs := make([]models.Field, 0, len(fieldMap))
			for name, fieldType := range fieldMap {
				ft, err := parseResultType(fieldType)
				if err != nil {
					return models.ResultType{}, fmt.Errorf("field %q: %w", name, err)
				}
				defs = append(defs, models.Field{Name: name, Type: ft})
			}
			// Map iteration order is random; keep field order stable.
			sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
			return models.RecordType(defs...), nil
		}
		return models.ResultType{}, fmt.Errorf("result type map needs an enum or record key")

	default:
		return models.ResultType{}, fmt.Errorf("unsupported result type declaration %T", v)
	}
}
