package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
)

// Applications keeps application rows and remote blueprints in step.
type Applications struct {
	persistence  persistence.Persistence
	orchestrator orchestrator.Client
	logger       *slog.Logger
}

func NewApplications(p persistence.Persistence, client orchestrator.Client) *Applications {
	return &Applications{
		persistence:  p,
		orchestrator: client,
		logger:       log.WithModule("applications"),
	}
}

type CreateApplicationRequest struct {
	Name          string `json:"name"           validate:"required,min=3,max=64"`
	Description   string `json:"description"    validate:"max=256"`
	MarketplaceID string `json:"marketplace_id" validate:"max=10"`
	// Blueprint is a URL, a local archive or a local blueprint file.
	Blueprint string `json:"blueprint"      validate:"required"`
	Owner     string `json:"-"`
}

// Create uploads the blueprint, then records the application. If the record
// cannot be stored the blueprint is deleted again.
func (a *Applications) Create(ctx context.Context, req CreateApplicationRequest) (*models.Application, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Blueprint) == "" {
		return nil, NewValidationError("CreateApplication", "invalid_request", "name and blueprint are required", ErrInvalidRequest)
	}

	if _, err := a.orchestrator.UploadBlueprint(ctx, req.Blueprint, req.Name); err != nil {
		return nil, fmt.Errorf("upload blueprint %s: %w", req.Name, err)
	}

	app := &models.Application{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		MarketplaceID: req.MarketplaceID,
		Owner:         req.Owner,
	}

	if err := a.persistence.Applications().Save(ctx, app); err != nil {
		if delErr := a.orchestrator.DeleteBlueprint(ctx, req.Name); delErr != nil {
			a.logger.ErrorContext(ctx, "Failed to delete blueprint after save error",
				"blueprint_id", req.Name,
				"error", delErr,
			)
		}

		return nil, fmt.Errorf("save application %s: %w", req.Name, err)
	}

	a.logger.InfoContext(ctx, "Application created", "application_id", app.ID, "name", app.Name, "owner", app.Owner)

	return app, nil
}

// Get returns the application if owner owns it.
func (a *Applications) Get(ctx context.Context, id, owner string) (*models.Application, error) {
	app, err := a.persistence.Applications().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("GetApplication", persistence.EntityApplication, id, owner, app.Owner); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *Applications) List(ctx context.Context, owner string) ([]*models.Application, error) {
	return a.persistence.Applications().List(ctx, owner)
}

func (a *Applications) ListByMarketplace(ctx context.Context, marketplaceIDs []string) ([]*models.Application, error) {
	return a.persistence.Applications().ListByMarketplace(ctx, marketplaceIDs)
}

// Inputs lists the deployment inputs the application's blueprint declares.
// Any user may read them.
func (a *Applications) Inputs(ctx context.Context, id string) ([]models.BlueprintInput, error) {
	app, err := a.persistence.Applications().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	bp, err := a.orchestrator.GetBlueprint(ctx, app.Name)
	if err != nil {
		return nil, fmt.Errorf("get blueprint %s: %w", app.Name, err)
	}

	return blueprintInputs(bp), nil
}

// Remove deletes the remote blueprint and then the record. The record stays
// when the blueprint could not be deleted.
func (a *Applications) Remove(ctx context.Context, id, owner string) error {
	app, err := a.Get(ctx, id, owner)
	if err != nil {
		return err
	}

	err = a.orchestrator.DeleteBlueprint(ctx, app.Name)
	if err != nil && !orchestrator.IsNotFound(err) {
		return fmt.Errorf("delete blueprint %s: %w", app.Name, err)
	}

	if err := a.persistence.Applications().Delete(ctx, app.ID); err != nil {
		a.logger.ErrorContext(ctx, "Blueprint deleted but application record remains",
			"application_id", app.ID,
			"blueprint_id", app.Name,
			"error", err,
		)

		return fmt.Errorf("delete application %s: %w", app.ID, err)
	}

	a.logger.InfoContext(ctx, "Application removed", "application_id", app.ID, "name", app.Name)

	return nil
}
