package models

import "time"

// Application is a published blueprint. Name is the remote blueprint id.
type Application struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"                     validate:"required,min=3,max=64"`
	Description   string    `json:"description"`
	MarketplaceID string    `json:"marketplace_id,omitempty"`
	Owner         string    `json:"owner"                    validate:"required"`
	CreatedAt     time.Time `json:"created_at"`
}

// BlueprintInput describes one input declared by an application blueprint.
type BlueprintInput struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}
