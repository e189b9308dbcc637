// Package internal documents the eventdesk server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: users and events business logic, id generation
// - storage: postgres and mongodb adapters behind one Backend interface
// - media: banner validation and filesystem/minio stores
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
