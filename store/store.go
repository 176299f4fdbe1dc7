package store

import (
	"context"

	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/instance"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, memory) implements all of them. Every data method takes an
// explicit tenant.Partition, so a Store value itself carries no tenant
// state.
type Store interface {
	profile.Store
	mission.Store
	instance.Store
	event.Store
	catalog.Store
	settings.Store

	// Provisioner exposes the valid tenant set for the router.
	tenant.Provisioner

	// Migrate runs all schema migrations for every known tenant
	// partition.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
