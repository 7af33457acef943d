// Package action executes single recipe nodes.
//
// Each node type has its own Action implementation. The Dispatcher picks the
// Action for a node, renders its prompt, bounds the call with a timeout,
// records timing and applies the node's error policy:
//
//   - fail: the result is failed and the error is returned
//   - skip: the result is skipped, carries the node's default output and no
//     error is returned
//   - retry: like fail; the caller decides whether to dispatch again
//
// The Dispatcher never retries and never writes execution state.
package action
