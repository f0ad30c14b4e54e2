// Package sinks implements lifecycle consumers: structured logging,
// Prometheus collectors and the operation history store.
package sinks
