// Package orchestrator talks to the remote orchestration engine that owns
// blueprints, deployments and workflow executions.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultPageSize is the number of events requested per ListEvents call.
const DefaultPageSize = 100

// Client is the subset of the orchestrator REST API the portal drives.
// Implementations never retry on their own.
type Client interface {
	// UploadBlueprint publishes the blueprint found at source under
	// blueprintID. source is a URL, a local archive or a local blueprint file.
	UploadBlueprint(ctx context.Context, source, blueprintID string) (*Blueprint, error)
	GetBlueprint(ctx context.Context, blueprintID string) (*Blueprint, error)
	DeleteBlueprint(ctx context.Context, blueprintID string) error

	CreateDeployment(ctx context.Context, blueprintID, deploymentID string, inputs map[string]any) (*Deployment, error)
	// DeleteDeployment removes a deployment; force ignores live nodes.
	DeleteDeployment(ctx context.Context, deploymentID string, force bool) error

	StartExecution(ctx context.Context, deploymentID, workflow string, params map[string]any, force bool) (*Execution, error)
	GetExecution(ctx context.Context, executionID string) (*Execution, error)
	ListEvents(ctx context.Context, executionID string, offset, size int) (*EventPage, error)
}

type Blueprint struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	MainFileName string    `json:"main_file_name"`
	Plan         Plan      `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
}

type Plan struct {
	Inputs map[string]InputDefinition `json:"inputs"`
}

// InputDefinition is a blueprint input declaration. A missing Default
// makes the input required.
type InputDefinition struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
}

func (d InputDefinition) Required() bool {
	return len(d.Default) == 0
}

type Deployment struct {
	ID          string         `json:"id"`
	BlueprintID string         `json:"blueprint_id"`
	Description string         `json:"description"`
	Inputs      map[string]any `json:"inputs"`
	Outputs     map[string]any `json:"outputs"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Execution struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	DeploymentID string    `json:"deployment_id"`
	Status       string    `json:"status"`
	Error        string    `json:"error"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventPage is one page of an execution's event stream.
type EventPage struct {
	Items []Event
	Total int
}
