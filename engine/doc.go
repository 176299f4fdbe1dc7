// Package engine assembles the scheduling subsystems into a single
// entry point. An Engine owns the tenant router, cron evaluator,
// interaction allocator, schedule aggregator, and task-status machine,
// and exposes the client-facing operations on top of them.
//
// Construction follows the functional options pattern; a store is the
// only required dependency:
//
//	eng, err := engine.New(
//		engine.WithStore(st),
//		engine.WithLogger(logger),
//		engine.WithConfig(cfg),
//	)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	list, err := eng.GetSchedule(ctx, tenantID, userID, deviceID, "")
//
// Every operation resolves its tenant partition through the router,
// passes an optional throttle gate, and runs inside the middleware
// chain (recover, tracing, metrics, logging, plus anything added with
// WithMiddleware).
package engine
