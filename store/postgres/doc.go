// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// Every tenant's data lives in its own schema ("tenant_<id>"); statements
// are qualified with the partition's schema so a single pool serves all
// tenants and cross-tenant reads are structurally impossible. Candidate
// queries order with random() so repeated allocations spread load, and
// instance row locks use SELECT ... FOR UPDATE NOWAIT, surfacing a
// contended row as engage.ErrLockBusy for the caller to retry.
package postgres
