// Package core contains the session broker's domain contracts, entities,
// and orchestration logic: the provider registry, the reuse/consent policy,
// the access ledger, usage tracking, and the dynamic-provider store. Storage
// adapters must depend on this package; core must not depend on them.
package core
