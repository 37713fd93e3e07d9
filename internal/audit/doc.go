// Package audit implements async event dispatching and Redis persistence for
// security-relevant operations.
//
// # Components
//
//   - [Event] — structured audit record with action, severity, actor
//     snapshot, IP, user agent, and before/after state.
//   - [Sink] — interface for event consumers (channel, JSON writer, Redis,
//     no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full
//     semantics.
//   - [Store] — Redis event ledger with retention TTLs, a time-ordered
//     index, and per-action / per-severity aggregates.
//
// # Architecture boundaries
//
// This package owns event buffering, delivery, and persistence. It does NOT
// decide which events to emit or how severe they are — that responsibility
// belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
package audit
