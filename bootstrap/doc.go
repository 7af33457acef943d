// Package bootstrap wires a recipe engine from one configuration struct.
//
// It loads configuration, builds the logger, telemetry, store, artifact
// storage, provider registry, capability resolver, dispatcher and
// orchestrator, and tears them down again in reverse order.
//
//	cfg, err := bootstrap.Load("recipeflow")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := bootstrap.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Shutdown(context.Background())
//
//	exec, err := engine.Orchestrator.Run(ctx, orchestrator.RunRequest{RecipeID: "article"})
package bootstrap
