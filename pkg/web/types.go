// Package web provides the HTTP API of the experiments portal.
package web

import "github.com/mso4sc/experiments/pkg/models"

// OwnerHeader carries the id of the calling user, set by the front end.
const OwnerHeader = "X-Owner"

type CreateApplicationRequest struct {
	Name          string `json:"name"           validate:"required,min=3,max=64"`
	Description   string `json:"description"    validate:"max=256"`
	MarketplaceID string `json:"marketplace_id" validate:"max=10"`
	// Blueprint is the URL of a blueprint archive. Multipart requests send
	// the archive itself in the "blueprint" file field instead.
	Blueprint string `json:"blueprint"      validate:"required"`
}

type CreateInstanceRequest struct {
	ApplicationID string            `json:"application_id" validate:"required"`
	Name          string            `json:"name"           validate:"required,min=3,max=64"`
	Description   string            `json:"description"    validate:"max=256"`
	Inputs        map[string]any    `json:"inputs"`
	HPCInputs     map[string]string `json:"hpc_inputs"`
}

type CredentialSecrets struct {
	PrivateKey         string `json:"private_key"          validate:"max=1800"`
	PrivateKeyPassword string `json:"private_key_password" validate:"max=50"`
	Password           string `json:"password"             validate:"max=50"`
}

func (s CredentialSecrets) secrets() models.Secrets {
	return models.Secrets{
		PrivateKey:         s.PrivateKey,
		PrivateKeyPassword: s.PrivateKeyPassword,
		Password:           s.Password,
	}
}

type CreateTunnelRequest struct {
	CredentialSecrets

	Name string `json:"name" validate:"required,max=50"`
	Host string `json:"host" validate:"required,max=50"`
	User string `json:"user" validate:"required,max=50"`
}

type CreateHPCRequest struct {
	CredentialSecrets

	Name     string `json:"name"      validate:"required,max=50"`
	Host     string `json:"host"      validate:"required,max=50"`
	User     string `json:"user"      validate:"required,max=50"`
	TimeZone string `json:"time_zone" validate:"required,max=20"`
	Manager  string `json:"manager"   validate:"required,oneof=SLURM"`
	TunnelID string `json:"tunnel_id"`
}

type DataCatalogueKeyRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}
