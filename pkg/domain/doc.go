/*
Package domain contains the core domain models for the Stanza runtime.

It defines the fundamental entities of the document runtime, such as the
Value union, Blocks, the render tree, and the scheduled execution
records. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Value: The closed scalar/object/array value union used throughout state.
  - Block: One declarative unit of a document (STATE, SET, FORM, IF, NAV, PANEL, MAP, WAIT).
  - Fragment: One ordered entry of the render tree handed to the presentation layer.
  - ScheduledExecution: A persisted continuation created by WAIT.
*/
package domain
