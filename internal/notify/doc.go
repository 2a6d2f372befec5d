// Package notify implements the client-side notification cache: a
// bounded, persisted, newest-first registry of notifications fed by a
// per-user push channel whose lifetime follows the signed-in identity.
//
// Inbound events are translated into records (or status patches) by pure
// functions, ingested with (kind, payload.id) deduplication and written
// through to a single key of a durable store after every mutation.
package notify
