package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/docflow/pkg/pipeline"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/services"
	"github.com/dukex/docflow/pkg/sweeper"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// DocumentProcessor runs the document pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) (*pipeline.Report, error)
	ProcessPendingDocuments(ctx context.Context, limit int) (pipeline.BatchResult, error)
}

// Sweeper runs one pass over due timers, overdue approvals and stranded runs.
type Sweeper interface {
	Tick(ctx context.Context, now time.Time) sweeper.Report
}

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Runs
	approvalService *services.Approvals
	documents       DocumentProcessor
	sweeper         Sweeper
	executors       *registry.Executors
	validator       *validator.Validate
	clock           func() time.Time
}

// Dependencies groups what the handlers call.
type Dependencies struct {
	Workflows *services.Workflow
	Runs      *services.Runs
	Approvals *services.Approvals
	Documents DocumentProcessor
	Sweeper   Sweeper
	Executors *registry.Executors
	Validator *validator.Validate
	Clock     func() time.Time
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	h := &APIHandlers{
		workflowService: deps.Workflows,
		runService:      deps.Runs,
		approvalService: deps.Approvals,
		documents:       deps.Documents,
		sweeper:         deps.Sweeper,
		executors:       deps.Executors,
		validator:       deps.Validator,
		clock:           deps.Clock,
	}

	if h.validator == nil {
		h.validator = validator.New(validator.WithRequiredStructEnabled())
	}

	if h.clock == nil {
		h.clock = func() time.Time { return time.Now().UTC() }
	}

	return h
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "docflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "docflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"node_types": len(h.executors.Components()),
		},
		"timestamp": h.clock(),
	})
}

// GetNodeTypes lists the registered node types with their ports and config schema.
func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(h.executors.Components())
}

// Workflows

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := req.ToModel()
	if workflow.Status == "" {
		existing, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
		if err != nil {
			return handleServiceError(c, err)
		}

		workflow.Status = existing.Status
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DryRunWorkflow(c fiber.Ctx) error {
	var req services.DryRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.workflowService.DryRun(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// Runs

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.runService.Start(c.Context(), services.StartRunRequest{
		WorkflowID: c.Params("id"),
		DocumentID: req.DocumentID,
		Variables:  req.Variables,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	status := c.Query("status", "waiting")

	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	runs, err := h.runService.List(c.Context(), status, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs, "status": status})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	detail, err := h.runService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) ResumeRun(c fiber.Ctx) error {
	var req ResumeRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.runService.Resume(c.Context(), c.Params("id"), services.ResumeRequest{Port: req.Port, Data: req.Data})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResumeResponse{Resumed: outcome.Resumed, Run: outcome.Run})
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	var req CancelRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// Approvals

func (h *APIHandlers) GetUserApprovals(c fiber.Ctx) error {
	openOnly := true

	if open := c.Query("open"); open != "" {
		parsed, err := strconv.ParseBool(open)
		if err != nil {
			return badRequest(c, "Invalid open flag: "+err.Error())
		}

		openOnly = parsed
	}

	tasks, err := h.approvalService.ListForUser(c.Context(), c.Params("userId"), openOnly)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) GetApproval(c fiber.Ctx) error {
	detail, err := h.approvalService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.approvalService.Decide(c.Context(), c.Params("id"), services.DecideRequest{
		UserID:   req.UserID,
		Decision: req.Decision,
		Comment:  req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// Documents

func (h *APIHandlers) ProcessDocument(c fiber.Ctx) error {
	report, err := h.documents.Process(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) ProcessPendingDocuments(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	result, err := h.documents.ProcessPendingDocuments(c.Context(), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// Sweep runs one sweeper pass immediately.
func (h *APIHandlers) Sweep(c fiber.Ctx) error {
	return c.JSON(h.sweeper.Tick(c.Context(), h.clock()))
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
