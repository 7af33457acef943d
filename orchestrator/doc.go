// Package orchestrator runs recipes.
//
// A run compiles the recipe, saves a running Execution and executes nodes in
// topological order: resolve inputs, select a capability provider, dispatch,
// append the result. Each result is persisted as soon as it exists, so the
// stored Execution always answers which node failed and why.
//
// Runs are sequential by default. With Config.Parallel, every dependency
// level runs concurrently behind a bulkhead and results are appended in
// level order, which keeps the result list a topological order.
//
// Cancellation is a status, not an error. Cancel marks the stored execution;
// the run finishes its in-flight node and schedules nothing further.
package orchestrator
