// Package runtime wires storage, config, the distribution engine, and the
// background loops into a single-node labeld instance. It exposes
// Open/Start/Close, basic health checks, and accessors used by the serving
// layer.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	rt.Start(ctx)
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
package runtime
