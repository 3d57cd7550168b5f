package models

import "time"

// Lifecycle workflows, run in this order for every instance.
const (
	WorkflowInstall   = "install"
	WorkflowRunJobs   = "run_jobs"
	WorkflowUninstall = "uninstall"
)

var Pipeline = []string{WorkflowInstall, WorkflowRunJobs, WorkflowUninstall}

// AppInstance is one deployment of an Application. Name is the remote
// deployment id.
type AppInstance struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"           validate:"required,min=3,max=64"`
	ApplicationID string            `json:"application_id" validate:"required"`
	Description   string            `json:"description"`
	Inputs        map[string]any    `json:"inputs"`
	// HPCInputs maps a deployment input name to the HPC whose credentials
	// fill it when the deployment is created.
	HPCInputs     map[string]string `json:"hpc_inputs,omitempty"`
	Outputs       map[string]any    `json:"outputs"`
	Owner         string            `json:"owner"          validate:"required"`
	Status        InstanceStatus    `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (i *AppInstance) IsFinished() bool {
	return IsExecutionFinished(i.Status)
}

// WorkflowExecution records a remote execution started for an instance.
// Its state is never stored locally.
type WorkflowExecution struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	InstanceID string    `json:"instance_id"`
	Workflow   string    `json:"workflow"`
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"created_at"`
}

// InstanceLog is one line of an instance's append-only log. ID is a
// monotonically increasing sequence.
type InstanceLog struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instance_id"`
	Generated  time.Time `json:"generated"`
	Message    string    `json:"message"`
}

// InstanceEvents is a page of an instance log together with the instance
// state at read time.
type InstanceEvents struct {
	Logs     []string       `json:"logs"`
	Last     int            `json:"last"`
	Status   InstanceStatus `json:"status"`
	Finished bool           `json:"finished"`
}
