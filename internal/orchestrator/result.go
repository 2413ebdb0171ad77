package orchestrator

// FlowResult summarizes a finished run.
type FlowResult struct {
	// FlowID identifies the flow that ran.
	FlowID string
	// Name is the flow's display name.
	Name string
	// Completed reports whether every task reached successful.
	Completed bool
	// Value is the flow's resolved result, when one was declared.
	Value any
	// Failed lists the ids of tasks that failed, in insertion order.
	// These are the root causes; downstream tasks are skipped, not failed.
	Failed []string
	// Skipped lists the ids of tasks skipped due to upstream failures or
	// cancellation, in insertion order.
	Skipped []string
	// Iterations is how many run-loop iterations were consumed.
	Iterations int
	// Turns is the total number of agent turns executed.
	Turns int
}
