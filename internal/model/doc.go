// Package model provides the shared data model for classy-sync.
//
// It holds the closed Scalar variant, change records, sync scopes, the
// resources a caller registers, and the request/result payloads exchanged
// with the remote catalog service. model imports nothing internal, so every
// other package can depend on it without cycles.
package model
