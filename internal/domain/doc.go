// Package domain contains the core domain entities and value objects for aprsship.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (sockets, databases, logging) and
// contains only the ingestion vocabulary and its rules.
//
// # Entities
//
//   - [RawLine]: One protocol line cut from the APRS-IS byte stream
//   - [Frame]: A decoded packet ready to be persisted
//   - [Fingerprint]: The dedup key of a frame
//   - [ConnState]: The session state machine and its legal edges
//   - [Batch]: An ordered group of frames written together
//   - [Status]: Snapshot persisted for operators (status.json)
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
