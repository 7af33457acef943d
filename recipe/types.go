package recipe

// NodeType selects the action that executes a node.
type NodeType string

const (
	NodeTextGeneration  NodeType = "text_generation"
	NodeImageGeneration NodeType = "image_generation"
	NodeVideoGeneration NodeType = "video_generation"
	NodeDataProcessing  NodeType = "data_processing"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{NodeTextGeneration, NodeImageGeneration, NodeVideoGeneration, NodeDataProcessing}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTextGeneration, NodeImageGeneration, NodeVideoGeneration, NodeDataProcessing:
		return true
	}
	return false
}

// Capability returns the provider capability the node type needs, or ""
// for data_processing.
func (t NodeType) Capability() Capability {
	switch t {
	case NodeTextGeneration:
		return CapabilityText
	case NodeImageGeneration:
		return CapabilityImage
	case NodeVideoGeneration:
		return CapabilityVideo
	}
	return ""
}

// Capability is a kind of generation a provider offers.
type Capability string

const (
	CapabilityText  Capability = "textGeneration"
	CapabilityImage Capability = "imageGeneration"
	CapabilityVideo Capability = "videoGeneration"
)

// ErrorPolicy decides what a node failure does to the run.
type ErrorPolicy string

const (
	// PolicyFail halts the run and marks the execution failed.
	PolicyFail ErrorPolicy = "fail"
	// PolicySkip records the node as skipped, substitutes its default
	// output and continues.
	PolicySkip ErrorPolicy = "skip"
	// PolicyRetry re-executes the node a bounded number of times before
	// treating the failure as fatal.
	PolicyRetry ErrorPolicy = "retry"
)

// OrDefault returns p, or PolicyFail when p is empty.
func (p ErrorPolicy) OrDefault() ErrorPolicy {
	if p == "" {
		return PolicyFail
	}
	return p
}

// OutputFormat controls how text generation output is normalized.
type OutputFormat string

const (
	FormatText      OutputFormat = "text"
	FormatJSON      OutputFormat = "json"
	FormatJSONArray OutputFormat = "json_array"
)

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// ResultStatus is the outcome of a single node.
type ResultStatus string

const (
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
	ResultFailed     ResultStatus = "failed"
	ResultSkipped    ResultStatus = "skipped"
)
