package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventBlockEnter    EventType = "block_enter"
	EventBlockLeave    EventType = "block_leave"
	EventWaitScheduled EventType = "wait_scheduled"
	EventWaitFired     EventType = "wait_fired"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
}

// BlockEvent represents entry or exit of a block during a document pass.
type BlockEvent struct {
	EventBase
	BlockID   string    `json:"block_id"`
	BlockKind BlockKind `json:"block_kind"`
}

// WaitEvent represents a scheduled or fired wait continuation.
type WaitEvent struct {
	EventBase
	BlockID     string `json:"block_id"`
	FireAtEpoch int64  `json:"fire_at_epoch"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnBlockEnter    func(context.Context, *BlockEvent)
	OnBlockLeave    func(context.Context, *BlockEvent)
	OnWaitScheduled func(context.Context, *WaitEvent)
	OnWaitFired     func(context.Context, *WaitEvent)
}
