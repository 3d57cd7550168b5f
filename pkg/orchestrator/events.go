package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeLifecycle is the event type emitted by the workflow engine itself.
const TypeLifecycle = "cloudify_event"

// Event is a remote execution event: a *LifecycleEvent or an *OpaqueEvent.
// Both keep the payload exactly as received.
type Event interface {
	Kind() string
	// ReportedTimestamp is empty when the orchestrator did not stamp the event.
	ReportedTimestamp() string
	Raw() json.RawMessage
}

type ErrorCause struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// LifecycleEvent reports workflow, task or node progress.
type LifecycleEvent struct {
	EventType      string
	Message        string
	NodeInstanceID string
	NodeName       string
	ErrorCauses    []ErrorCause
	Timestamp      string
	raw            json.RawMessage
}

func (e *LifecycleEvent) Kind() string              { return TypeLifecycle }
func (e *LifecycleEvent) ReportedTimestamp() string { return e.Timestamp }
func (e *LifecycleEvent) Raw() json.RawMessage      { return e.raw }

// OpaqueEvent is any event the portal does not interpret, e.g. plugin logs.
type OpaqueEvent struct {
	Type      string
	Timestamp string
	raw       json.RawMessage
}

func (e *OpaqueEvent) Kind() string              { return e.Type }
func (e *OpaqueEvent) ReportedTimestamp() string { return e.Timestamp }
func (e *OpaqueEvent) Raw() json.RawMessage      { return e.raw }

var ErrMalformedEvent = errors.New("malformed event")

type eventEnvelope struct {
	Type              string          `json:"type"`
	EventType         string          `json:"event_type"`
	Message           json.RawMessage `json:"message"`
	NodeInstanceID    string          `json:"node_instance_id"`
	NodeName          string          `json:"node_name"`
	ReportedTimestamp string          `json:"reported_timestamp"`
	ErrorCauses       []ErrorCause    `json:"error_causes"`
}

// DecodeEvent classifies a raw event payload.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	kept := make(json.RawMessage, len(raw))
	copy(kept, raw)

	if env.Type != TypeLifecycle {
		return &OpaqueEvent{Type: env.Type, Timestamp: env.ReportedTimestamp, raw: kept}, nil
	}

	return &LifecycleEvent{
		EventType:      env.EventType,
		Message:        messageText(env.Message),
		NodeInstanceID: env.NodeInstanceID,
		NodeName:       env.NodeName,
		ErrorCauses:    env.ErrorCauses,
		Timestamp:      env.ReportedTimestamp,
		raw:            kept,
	}, nil
}

// messageText accepts both the plain string form and the older
// {"text": "..."} form of the message field.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var wrapped struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Text
	}

	return ""
}
