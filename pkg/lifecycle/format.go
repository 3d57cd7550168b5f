// Package lifecycle drives application instances through the install,
// run_jobs and uninstall workflows on the orchestrator.
package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/mso4sc/experiments/pkg/orchestrator"
)

var ErrMissingTimestamp = errors.New("event has no reported_timestamp")

const reportedTimestampKey = "reported_timestamp"

// FormatEvent renders a remote event as one instance log message. Events
// without a reported timestamp are rejected with ErrMissingTimestamp.
func FormatEvent(event orchestrator.Event) (string, error) {
	if event.ReportedTimestamp() == "" {
		return "", ErrMissingTimestamp
	}

	lifecycle, ok := event.(*orchestrator.LifecycleEvent)
	if !ok {
		return payloadText(event.Raw(), reportedTimestampKey)
	}

	var msg strings.Builder
	msg.WriteString(lifecycle.Message)

	switch lifecycle.EventType {
	case "workflow_node_event":
		msg.WriteString(" " + lifecycle.NodeInstanceID + " (" + lifecycle.NodeName + ")")
	case "sending_task", "task_started", "task_succeeded", "task_failed":
		if lifecycle.NodeInstanceID != "" {
			msg.WriteString(" " + lifecycle.NodeInstanceID)
		}
		if lifecycle.NodeName != "" {
			msg.WriteString(" (" + lifecycle.NodeName + ")")
		}
	case "workflow_started", "workflow_succeeded", "workflow_failed", "workflow_cancelled":
	default:
		text, err := payloadText(lifecycle.Raw(), reportedTimestampKey)
		if err != nil {
			return "", err
		}
		msg.Reset()
		msg.WriteString(text)
	}

	for _, cause := range lifecycle.ErrorCauses {
		msg.WriteString("\n" + cause.Type + ": " + cause.Message + "\n\t" + cause.Traceback)
	}

	return msg.String(), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
}

// eventTime parses the reported timestamp, falling back to now.
func eventTime(event orchestrator.Event) time.Time {
	ts := event.ReportedTimestamp()
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}

	return time.Now().UTC()
}
