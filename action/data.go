package action

import (
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"sync"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/storage"
)

// Built-in data processing operations.
const (
	OpPassthrough = "passthrough"
	OpCombine     = "combine"
	OpPick        = "pick"
	OpPersist     = "persist"
)

// OperationRequest is the input of an Operation.
type OperationRequest struct {
	Node    *recipe.Node
	Input   map[string]any
	Config  map[string]any
	Scope   string
	Storage storage.Storage
}

// Operation is a local transformation run by a data_processing node.
type Operation func(ctx context.Context, req OperationRequest) (any, error)

// DataProcessing runs the operation named by the node's "operation" config
// key, passthrough when absent. It never calls a capability provider.
type DataProcessing struct {
	storage storage.Storage

	mu  sync.RWMutex
	ops map[string]Operation
}

// NewDataProcessing creates the action with the built-in operations. st may
// be nil, in which case persist fails.
func NewDataProcessing(st storage.Storage) *DataProcessing {
	return &DataProcessing{
		storage: st,
		ops: map[string]Operation{
			OpPassthrough: passthrough,
			OpCombine:     combine,
			OpPick:        pick,
			OpPersist:     persist,
		},
	}
}

// Register adds or replaces an operation.
func (a *DataProcessing) Register(name string, op Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops[name] = op
}

// Operations returns the registered operation names, sorted.
func (a *DataProcessing) Operations() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.ops))
}

func (a *DataProcessing) Type() recipe.NodeType { return recipe.NodeDataProcessing }

func (a *DataProcessing) Execute(ctx context.Context, req Request) (Output, error) {
	name := OpPassthrough
	if v, ok := req.Node.Config["operation"]; ok {
		s, isStr := v.(string)
		if !isStr || s == "" {
			return Output{}, errors.InvalidInput("operation", "operation must be a non-empty string")
		}
		name = s
	}

	a.mu.RLock()
	op, ok := a.ops[name]
	a.mu.RUnlock()
	if !ok {
		return Output{}, errors.InvalidInput("operation", fmt.Sprintf("unknown operation %q", name))
	}

	v, err := op(ctx, OperationRequest{
		Node:    req.Node,
		Input:   req.Input,
		Config:  req.Node.Config,
		Scope:   req.Scope,
		Storage: a.storage,
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Value: v}, nil
}

// passthrough returns the resolved input. A single input is unwrapped.
func passthrough(_ context.Context, req OperationRequest) (any, error) {
	if len(req.Input) == 1 {
		for _, v := range req.Input {
			return v, nil
		}
	}
	return maps.Clone(req.Input), nil
}

// combine merges maps or concatenates arrays from every input, in the order
// given by the "keys" config or sorted by name.
func combine(_ context.Context, req OperationRequest) (any, error) {
	keys, err := stringList(req.Config, "keys")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		keys = slices.Sorted(maps.Keys(req.Input))
	}

	var (
		merged map[string]any
		joined []any
	)
	for _, k := range keys {
		switch v := req.Input[k].(type) {
		case nil:
			// Skipped upstream nodes contribute nothing.
		case map[string]any:
			if joined != nil {
				return nil, errors.InvalidInput(k, "cannot combine objects with arrays")
			}
			if merged == nil {
				merged = make(map[string]any)
			}
			maps.Copy(merged, v)
		case []any:
			if merged != nil {
				return nil, errors.InvalidInput(k, "cannot combine arrays with objects")
			}
			joined = append(joined, v...)
		default:
			if merged != nil {
				return nil, errors.InvalidInput(k, "cannot combine scalar values with objects")
			}
			joined = append(joined, v)
		}
	}
	if merged != nil {
		return merged, nil
	}
	if joined == nil {
		joined = []any{}
	}
	return joined, nil
}

// pick selects the value at the dotted "key" path of the input.
func pick(_ context.Context, req OperationRequest) (any, error) {
	key, _ := req.Config["key"].(string)
	if key == "" {
		return nil, errors.MissingField("config.key")
	}
	v, ok := recipe.Lookup(req.Input, key)
	if !ok {
		return nil, errors.InvalidInput("config.key", fmt.Sprintf("input has no value at %q", key))
	}
	return v, nil
}

// persist writes the input, or the value at "key", as JSON to blob storage
// and returns where it went. The object path defaults to
// <scope>/<node id>.json.
func persist(ctx context.Context, req OperationRequest) (any, error) {
	if req.Storage == nil {
		return nil, errors.New(errors.ErrCodeInternal, "persist requires blob storage")
	}

	var data any = req.Input
	if key, _ := req.Config["key"].(string); key != "" {
		v, ok := recipe.Lookup(req.Input, key)
		if !ok {
			return nil, errors.InvalidInput("config.key", fmt.Sprintf("input has no value at %q", key))
		}
		data = v
	}

	p, _ := req.Config["path"].(string)
	if p == "" {
		p = path.Join(req.Scope, req.Node.ID+".json")
	}
	obj, err := storage.PutJSON(ctx, req.Storage, p, data)
	if err != nil {
		return nil, errors.StoreError("persist", err)
	}
	return map[string]any{"url": obj.URL, "path": obj.Path, "size": obj.Size}, nil
}

func stringList(cfg map[string]any, key string) ([]string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.InvalidInput("config."+key, "expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.InvalidInput("config."+key, "expected a list of strings")
}
