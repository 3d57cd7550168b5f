// Package events defines the messages exchanged between the API and the
// lifecycle workers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every instance lifecycle request.
const Topic = "experiments.instances"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceRunRequestedEvent   EventType = "instance.run.requested"
	InstanceResetRequestedEvent EventType = "instance.reset.requested"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
}

// InstanceRunRequested asks a worker to run the install, run_jobs and
// uninstall workflows of an instance.
type InstanceRunRequested struct {
	BaseEvent

	DeploymentID string `json:"deployment_id"`
	RequestedBy  string `json:"requested_by"`
}

func (e InstanceRunRequested) GetType() EventType {
	return InstanceRunRequestedEvent
}

// InstanceResetRequested asks a worker to return an instance to prepared.
type InstanceResetRequested struct {
	BaseEvent

	DeploymentID string `json:"deployment_id"`
	RequestedBy  string `json:"requested_by"`
}

func (e InstanceResetRequested) GetType() EventType {
	return InstanceResetRequestedEvent
}
