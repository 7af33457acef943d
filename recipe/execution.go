package recipe

import "time"

// ActionResult is the record of one node execution. It is not modified after
// it has been appended to an Execution.
type ActionResult struct {
	NodeID      string        `json:"nodeId"`
	NodeType    NodeType      `json:"nodeType"`
	Status      ResultStatus  `json:"status"`
	Input       any           `json:"input,omitempty"`
	Output      any           `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorCode   string        `json:"errorCode,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
}

// ExecutionContext carries failure details of a halted run.
type ExecutionContext struct {
	FailedNodeID string `json:"failedNodeId,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

// Execution is one run of a recipe.
type Execution struct {
	ID            string           `json:"id"`
	RecipeID      string           `json:"recipeId"`
	ProjectID     string           `json:"projectId,omitempty"`
	Stage         string           `json:"stage,omitempty"`
	Status        ExecutionStatus  `json:"status"`
	Results       []ActionResult   `json:"results"`
	ExternalInput map[string]any   `json:"externalInput,omitempty"`
	FinalOutput   any              `json:"finalOutput,omitempty"`
	Context       ExecutionContext `json:"executionContext"`
	RetryOf       string           `json:"retryOf,omitempty"`
	StartedAt     time.Time        `json:"startedAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	CancelledAt   *time.Time       `json:"cancelledAt,omitempty"`
}

// Result returns the recorded result for a node.
func (e *Execution) Result(nodeID string) (ActionResult, bool) {
	for _, r := range e.Results {
		if r.NodeID == nodeID {
			return r, true
		}
	}
	return ActionResult{}, false
}

// Clone returns a copy whose Results slice can be appended to independently.
func (e *Execution) Clone() *Execution {
	c := *e
	c.Results = append([]ActionResult(nil), e.Results...)
	return &c
}
