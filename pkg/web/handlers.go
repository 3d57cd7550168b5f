package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/services"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	applications *services.Applications
	instances    *services.Instances
	executions   *services.Executions
	credentials  *services.Credentials
	dispatcher   lifecycle.Dispatcher
	health       HealthChecker
	validator    *validator.Validate
}

func NewAPIHandlers(
	applications *services.Applications,
	instances *services.Instances,
	executions *services.Executions,
	credentials *services.Credentials,
	dispatcher lifecycle.Dispatcher,
	health HealthChecker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		applications: applications,
		instances:    instances,
		executions:   executions,
		credentials:  credentials,
		dispatcher:   dispatcher,
		health:       health,
		validator:    validator,
	}
}

// RequireOwner rejects requests without the owner header.
func RequireOwner(c fiber.Ctx) error {
	if strings.TrimSpace(c.Get(OwnerHeader)) == "" {
		return badRequest(c, OwnerHeader+" header is required")
	}

	return c.Next()
}

func owner(c fiber.Ctx) string {
	return strings.TrimSpace(c.Get(OwnerHeader))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Experiments API is healthy"
	httpStatus := http.StatusOK
	persistenceCheck := "ok"

	if err := h.health.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Experiments API is unhealthy"
		httpStatus = http.StatusInternalServerError
		persistenceCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateApplication(c fiber.Ctx) error {
	var req CreateApplicationRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		dir, err := os.MkdirTemp("", "blueprint-*")
		if err != nil {
			return handleServiceError(c, err)
		}
		defer func() { _ = os.RemoveAll(dir) }()

		path, err := h.saveBlueprint(c, dir)
		if err != nil {
			return badRequest(c, "Invalid blueprint upload: "+err.Error())
		}

		req = CreateApplicationRequest{
			Name:          c.FormValue("name"),
			Description:   c.FormValue("description"),
			MarketplaceID: c.FormValue("marketplace_id"),
			Blueprint:     path,
		}
	} else {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Var(req.Blueprint, "required,url"); err != nil {
			return badRequest(c, "blueprint must be a URL")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	app, err := h.applications.Create(c.Context(), services.CreateApplicationRequest{
		Name:          req.Name,
		Description:   req.Description,
		MarketplaceID: req.MarketplaceID,
		Blueprint:     req.Blueprint,
		Owner:         owner(c),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(app)
}

func (h *APIHandlers) saveBlueprint(c fiber.Ctx, dir string) (string, error) {
	file, err := c.FormFile("blueprint")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveFile(file, path); err != nil {
		return "", err
	}

	return path, nil
}

// GetApplications lists the caller's applications, or every application
// published under the comma separated marketplace_ids.
func (h *APIHandlers) GetApplications(c fiber.Ctx) error {
	var (
		apps []*models.Application
		err  error
	)

	if ids := c.Query("marketplace_ids"); ids != "" {
		apps, err = h.applications.ListByMarketplace(c.Context(), strings.Split(ids, ","))
	} else {
		apps, err = h.applications.List(c.Context(), owner(c))
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(apps)
}

func (h *APIHandlers) GetApplication(c fiber.Ctx) error {
	app, err := h.applications.Get(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(app)
}

func (h *APIHandlers) GetApplicationInputs(c fiber.Ctx) error {
	inputs, err := h.applications.Inputs(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(inputs)
}

func (h *APIHandlers) DeleteApplication(c fiber.Ctx) error {
	if err := h.applications.Remove(c.Context(), c.Params("id"), owner(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instances.Create(c.Context(), services.CreateInstanceRequest{
		ApplicationID: req.ApplicationID,
		Name:          req.Name,
		Description:   req.Description,
		Inputs:        req.Inputs,
		HPCInputs:     req.HPCInputs,
		Owner:         owner(c),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	instances, err := h.instances.List(c.Context(), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.instances.Get(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

// GetInstanceEvents pages the instance log from the offset query parameter.
func (h *APIHandlers) GetInstanceEvents(c fiber.Ctx) error {
	offset := 0

	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "offset must be an integer")
		}

		offset = parsed
	}

	events, err := h.instances.Events(c.Context(), c.Params("id"), offset, owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(events)
}

func (h *APIHandlers) GetInstanceExecutions(c fiber.Ctx) error {
	executions, err := h.executions.List(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

// RunInstance queues the workflow pipeline of an idle instance.
func (h *APIHandlers) RunInstance(c fiber.Ctx) error {
	return h.dispatch(c, h.dispatcher.DispatchRun)
}

// ResetInstance queues a reset of an idle instance.
func (h *APIHandlers) ResetInstance(c fiber.Ctx) error {
	return h.dispatch(c, h.dispatcher.DispatchReset)
}

func (h *APIHandlers) dispatch(c fiber.Ctx, dispatch func(context.Context, *models.AppInstance) error) error {
	instance, err := h.instances.Get(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := services.EnsureIdle(instance); err != nil {
		return handleServiceError(c, err)
	}

	if err := dispatch(c.Context(), instance); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(instance)
}

func (h *APIHandlers) DeleteInstance(c fiber.Ctx) error {
	force := false

	if forceStr := c.Query("force"); forceStr != "" {
		parsed, err := strconv.ParseBool(forceStr)
		if err != nil {
			return badRequest(c, "force must be a boolean")
		}

		force = parsed
	}

	if err := h.instances.Remove(c.Context(), c.Params("id"), owner(c), force); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateTunnel(c fiber.Ctx) error {
	var req CreateTunnelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	tunnel, err := h.credentials.CreateTunnel(c.Context(), &models.Tunnel{
		Name:    req.Name,
		Owner:   owner(c),
		Host:    req.Host,
		User:    req.User,
		Secrets: req.secrets(),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tunnel)
}

func (h *APIHandlers) GetTunnels(c fiber.Ctx) error {
	tunnels, err := h.credentials.ListTunnels(c.Context(), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tunnels)
}

func (h *APIHandlers) GetTunnel(c fiber.Ctx) error {
	tunnel, err := h.credentials.GetTunnel(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tunnel)
}

func (h *APIHandlers) DeleteTunnel(c fiber.Ctx) error {
	if err := h.credentials.RemoveTunnel(c.Context(), c.Params("id"), owner(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateHPC(c fiber.Ctx) error {
	var req CreateHPCRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	hpc, err := h.credentials.CreateHPC(c.Context(), &models.HPC{
		Name:     req.Name,
		Owner:    owner(c),
		Host:     req.Host,
		User:     req.User,
		Secrets:  req.secrets(),
		TimeZone: req.TimeZone,
		Manager:  req.Manager,
		TunnelID: req.TunnelID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(hpc)
}

func (h *APIHandlers) GetHPCs(c fiber.Ctx) error {
	hpcs, err := h.credentials.ListHPCs(c.Context(), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(hpcs)
}

func (h *APIHandlers) GetHPC(c fiber.Ctx) error {
	hpc, err := h.credentials.GetHPC(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(hpc)
}

func (h *APIHandlers) DeleteHPC(c fiber.Ctx) error {
	if err := h.credentials.RemoveHPC(c.Context(), c.Params("id"), owner(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetDataCatalogueKey(c fiber.Ctx) error {
	key, err := h.credentials.GetDataCatalogueKey(c.Context(), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(key)
}

func (h *APIHandlers) bindDataCatalogueKey(c fiber.Ctx) (*DataCatalogueKeyRequest, error) {
	var req DataCatalogueKeyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, badRequest(c, err.Error())
	}

	return &req, nil
}

func (h *APIHandlers) CreateDataCatalogueKey(c fiber.Ctx) error {
	req, err := h.bindDataCatalogueKey(c)
	if req == nil {
		return err
	}

	key, err := h.credentials.CreateDataCatalogueKey(c.Context(), owner(c), req.Code)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(key)
}

func (h *APIHandlers) UpdateDataCatalogueKey(c fiber.Ctx) error {
	req, err := h.bindDataCatalogueKey(c)
	if req == nil {
		return err
	}

	key, err := h.credentials.UpdateDataCatalogueKey(c.Context(), owner(c), req.Code)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(key)
}

func (h *APIHandlers) DeleteDataCatalogueKey(c fiber.Ctx) error {
	if err := h.credentials.RemoveDataCatalogueKey(c.Context(), owner(c)); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
