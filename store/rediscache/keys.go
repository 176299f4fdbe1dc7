package rediscache

import (
	"time"

	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Redis key naming conventions. All keys are prefixed with "engage:" and
// the partition schema, so tenants never share cache entries.

const keyPrefix = "engage:"

// defaultTTL bounds staleness: settings and catalog changes become
// visible within one TTL without explicit invalidation.
const defaultTTL = 30 * time.Second

func settingsKey(part tenant.Partition, userID, deviceID string) string {
	return keyPrefix + part.Schema() + ":settings:" + userID + ":" + deviceID
}

func taskKey(part tenant.Partition, name string) string {
	return keyPrefix + part.Schema() + ":task:" + name
}

func taskListKey(part tenant.Partition) string {
	return keyPrefix + part.Schema() + ":tasks"
}
