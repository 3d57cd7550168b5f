package models

import "time"

const WorkloadManagerSlurm = "SLURM"

// Secrets are the fields never returned to a caller.
type Secrets struct {
	PrivateKey         string `json:"private_key,omitempty"          validate:"max=1800"`
	PrivateKeyPassword string `json:"private_key_password,omitempty" validate:"max=50"`
	Password           string `json:"password,omitempty"             validate:"max=50"`
}

// Tunnel is an SSH jump host used to reach an HPC.
type Tunnel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"  validate:"required,max=50"`
	Owner     string    `json:"owner" validate:"required"`
	Host      string    `json:"host"  validate:"required,max=50"`
	User      string    `json:"user"  validate:"required,max=50"`
	Secrets   Secrets   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns a copy of t without secrets.
func (t Tunnel) Public() Tunnel {
	t.Secrets = Secrets{}
	return t
}

func (t *Tunnel) credentials() map[string]any {
	return map[string]any{
		"host":                 t.Host,
		"user":                 t.User,
		"private_key":          t.Secrets.PrivateKey,
		"private_key_password": t.Secrets.PrivateKeyPassword,
		"password":             t.Secrets.Password,
	}
}

// HPC is a compute infrastructure the blueprints submit jobs to.
type HPC struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"              validate:"required,max=50"`
	Owner     string    `json:"owner"             validate:"required"`
	Host      string    `json:"host"              validate:"required,max=50"`
	User      string    `json:"user"              validate:"required,max=50"`
	Secrets   Secrets   `json:"-"`
	TimeZone  string    `json:"time_zone"         validate:"required,max=20"`
	Manager   string    `json:"manager"           validate:"required,oneof=SLURM"`
	TunnelID  string    `json:"tunnel_id,omitempty"`
	Tunnel    *Tunnel   `json:"tunnel,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns a copy of h without secrets, its tunnel included.
func (h HPC) Public() HPC {
	h.Secrets = Secrets{}
	if h.Tunnel != nil {
		t := h.Tunnel.Public()
		h.Tunnel = &t
	}

	return h
}

// Inputs renders h as the deployment input object the HPC plugin expects.
// The tunnel must be loaded in h.Tunnel when TunnelID is set.
func (h *HPC) Inputs() map[string]any {
	credentials := map[string]any{
		"host":                 h.Host,
		"user":                 h.User,
		"private_key":          h.Secrets.PrivateKey,
		"private_key_password": h.Secrets.PrivateKeyPassword,
		"password":             h.Secrets.Password,
	}
	if h.Tunnel != nil {
		credentials["tunnel"] = h.Tunnel.credentials()
	}

	return map[string]any{
		"credentials":      credentials,
		"country_tz":       h.TimeZone,
		"workload_manager": h.Manager,
	}
}

// DataCatalogueKey is a user's access key to the data catalogue. An owner has
// at most one.
type DataCatalogueKey struct {
	Owner     string    `json:"owner" validate:"required"`
	Code      string    `json:"code"  validate:"required,max=50"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
