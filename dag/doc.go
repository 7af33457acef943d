// Package dag validates and compiles recipe graphs.
//
// Validate rejects graphs that cannot run: missing or duplicate nodes,
// edges to unknown nodes, self loops, cycles and declared dependencies that
// no edge backs. TopologicalSort and BuildLevels produce the execution order
// (sequential and level-grouped); Ancestors and Descendants answer
// reachability queries. Compile bundles all of it for the orchestrator.
//
// Every error returned here is an *errors.AppError with code
// STRUCTURAL_ERROR wrapping one of the Err* sentinels, so callers can use
// errors.Is to tell the cases apart.
package dag
