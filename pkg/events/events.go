// Package events defines event types and structures for care plan lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single stream all care plan events travel on.
const Topic = "careplan.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Care plan lifecycle events.
	CarePlanCreatedEvent EventType = "careplan.created"
	CarePlanUpdatedEvent EventType = "careplan.updated"
	CarePlanDeletedEvent EventType = "careplan.deleted"

	// Block editing events.
	BlockCreatedEvent EventType = "block.created"
	BlockUpdatedEvent EventType = "block.updated"
	BlockDeletedEvent EventType = "block.deleted"
	BlocksLinkedEvent EventType = "block.linked"

	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunAdvancedEvent  EventType = "run.advanced"
	RunCompletedEvent EventType = "run.completed"
	RunStoppedEvent   EventType = "run.stopped"

	// Reminder events.
	ReminderDueEvent EventType = "run.reminder.due"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with generated ID and current timestamp.
func NewBaseEvent(eventType EventType, planID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
	}
}

type CarePlanCreated struct {
	BaseEvent

	Title     string `json:"title"`
	PatientID string `json:"patient_id"`
}

func (e CarePlanCreated) GetType() EventType {
	return CarePlanCreatedEvent
}

type CarePlanUpdated struct {
	BaseEvent

	Title string `json:"title"`
}

func (e CarePlanUpdated) GetType() EventType {
	return CarePlanUpdatedEvent
}

type CarePlanDeleted struct {
	BaseEvent
}

func (e CarePlanDeleted) GetType() EventType {
	return CarePlanDeletedEvent
}

type BlockCreated struct {
	BaseEvent

	BlockID   string `json:"block_id"`
	BlockType string `json:"block_type"`
}

func (e BlockCreated) GetType() EventType {
	return BlockCreatedEvent
}

type BlockUpdated struct {
	BaseEvent

	BlockID   string `json:"block_id"`
	BlockType string `json:"block_type"`
}

func (e BlockUpdated) GetType() EventType {
	return BlockUpdatedEvent
}

type BlockDeleted struct {
	BaseEvent

	BlockID string `json:"block_id"`
}

func (e BlockDeleted) GetType() EventType {
	return BlockDeletedEvent
}

// BlocksLinked records a new parent/child edge between two blocks.
type BlocksLinked struct {
	BaseEvent

	ParentBlockID string `json:"parent_block_id"`
	ChildBlockID  string `json:"child_block_id"`
}

func (e BlocksLinked) GetType() EventType {
	return BlocksLinkedEvent
}

type RunStarted struct {
	BaseEvent

	BlockCount int `json:"block_count"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunAdvanced struct {
	BaseEvent

	BlockIndex int    `json:"block_index"`
	BlockID    string `json:"block_id"`
}

func (e RunAdvanced) GetType() EventType {
	return RunAdvancedEvent
}

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunStopped struct {
	BaseEvent

	BlockIndex int `json:"block_index"`
}

func (e RunStopped) GetType() EventType {
	return RunStoppedEvent
}

// ReminderDue signals that a run has been sitting on the same block for
// longer than the reminder threshold.
type ReminderDue struct {
	BaseEvent

	BlockIndex int       `json:"block_index"`
	BlockID    string    `json:"block_id"`
	StalledAt  time.Time `json:"stalled_at"`
}

func (e ReminderDue) GetType() EventType {
	return ReminderDueEvent
}
