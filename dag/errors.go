package dag

import (
	stderrors "errors"
	"fmt"

	"github.com/kbukum/recipeflow/errors"
)

// Structural failure causes.
var (
	ErrEmptyGraph           = stderrors.New("recipe has no nodes")
	ErrInvalidNode          = stderrors.New("invalid node")
	ErrDuplicateNode        = stderrors.New("duplicate node id")
	ErrMissingCapability    = stderrors.New("generation node has no capability config")
	ErrUnknownNode          = stderrors.New("edge references unknown node")
	ErrSelfLoop             = stderrors.New("edge is a self loop")
	ErrCycleDetected        = stderrors.New("cycle detected")
	ErrUndeclaredDependency = stderrors.New("dependency is not backed by an edge")
)

func structural(sentinel error, format string, args ...any) error {
	return errors.Structural(fmt.Errorf("dag: %w: %s", sentinel, fmt.Sprintf(format, args...)))
}
