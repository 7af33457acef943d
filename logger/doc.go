// Package logger provides structured logging backed by zerolog.
//
// Loggers are scoped by component and carry recipe execution fields
// (recipe_id, execution_id, node_id) either explicitly or from a context
// populated with ContextWithExecution / ContextWithNode.
//
//	log := logger.New(&cfg, "recipeflow").WithComponent("orchestrator")
//	log.Info("node completed", logger.Fields(logger.FieldNodeID, "n1"))
package logger
