// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [Decoder]: Turns one APRS-IS text line into a frame
//   - [FrameStore]: Writes batches of frames to a relational store
//   - [Pruner]: Optional store capability to delete old frames
//   - [Dialer]: Opens the TCP session to an APRS-IS server
//   - [StatusRepository]: Persists the operator status snapshot
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (SQLite, PostgreSQL, TCP, file system).
//
// This separation enables:
//   - Testing application logic with mock implementations
//   - Swapping infrastructure without changing business logic
//   - Clear boundaries and dependency direction
package ports
