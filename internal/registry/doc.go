// Package registry tracks the lifecycle of cancellable operations. Every
// running operation owns an Active entry holding a shared Flag; cancelling an
// id that has not registered yet leaves a Tombstone so the later registration
// is refused. Stale tombstones are swept lazily during registration once the
// registry grows past SweepThreshold entries.
package registry
