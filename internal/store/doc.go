// Package store defines the operation history contract. Implementations live
// in other packages; this package must not import concrete clients.
package store
