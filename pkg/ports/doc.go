/*
Package ports defines the driven ports (interfaces) for the Stanza runtime.

These interfaces decouple the core logic from external implementations,
allowing the runtime to work with various scheduler stores and tabular data
sources.

# Key Interfaces

  - TableSource: Read-only whole-table reads consumed by the database binder.
  - SchedulerStore: Durable persistence for WAIT continuations.
*/
package ports
