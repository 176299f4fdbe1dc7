// Package engage implements the mission scheduling and execution engine
// behind a multi-tenant profile automation backend. It decides which
// missions and ad-hoc interactions should fire "now" for a polling client,
// allocates interaction partners under daily limits, and applies task
// status reports to mission instances with event-time ordering.
//
// Engage is designed as a library, not a service. Import it, configure a
// store, and call engine operations; HTTP plumbing lives outside.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(pgStore),
//	    engine.WithLogger(logger),
//	)
//
// # Architecture
//
// Engage follows a composable store pattern where each subsystem (profile,
// mission, instance, event, catalog, settings) defines its own store
// interface. A single backend implements all of them, one data partition
// per tenant. Every operation takes an explicit tenant partition handle;
// there is no ambient session state carrying the active tenant.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package engage
