package web

import "github.com/gofiber/fiber/v3"

// Routes mounts every endpoint of the API on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.GetNodeTypes)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Post("/:id/dry-run", h.DryRunWorkflow)
	w.Post("/:id/runs", h.StartRun)

	r := router.Group("/runs")
	r.Get("/", h.GetRuns)
	r.Get("/:id", h.GetRun)
	r.Post("/:id/resume", h.ResumeRun)
	r.Post("/:id/cancel", h.CancelRun)

	router.Get("/users/:userId/approvals", h.GetUserApprovals)

	a := router.Group("/approvals")
	a.Get("/:id", h.GetApproval)
	a.Post("/:id/decision", h.DecideApproval)

	d := router.Group("/documents")
	d.Post("/process-pending", h.ProcessPendingDocuments)
	d.Post("/:id/process", h.ProcessDocument)

	router.Post("/sweeper/run", h.Sweep)
}
