// Package orchestrator assembles the router, breakers, health registry,
// metrics collector, workflow engine and event bus from a config.Config and
// exposes them through one facade.
//
// Operations that do work return a result.Result envelope and never panic:
// a panic inside a downstream invoker or subscriber is recovered and reported
// as an UNKNOWN failure. Query operations return plain snapshots.
//
//	orch, err := orchestrator.New(cfg, invoker,
//	    orchestrator.WithProbe("imagen-primary", health.NewPingChecker("imagen-primary", client.Ping)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := orch.Start(ctx); err != nil {
//	    return err
//	}
//	defer orch.Stop()
//
//	res := orch.RouteRequest(ctx, "image", routing.Request{Operation: "generate"}, routing.Options{})
package orchestrator
