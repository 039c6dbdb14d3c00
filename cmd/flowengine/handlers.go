package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowengine/flow/builder"
	"github.com/lyzr/flowengine/flow/events"
	"github.com/lyzr/flowengine/flow/node"
	"github.com/lyzr/flowengine/flow/payload"
	"github.com/lyzr/flowengine/flow/runner"
)

// Handlers serves the workflow management and execution routes.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates the route handlers backed by the engine manager.
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// Register mounts all workflow routes on the Echo instance.
func (h *Handlers) Register(e *echo.Echo) {
	e.POST("/workflows/:id", h.LoadWorkflow)
	e.DELETE("/workflows/:id", h.UnloadWorkflow)
	e.POST("/workflows/:id/start", h.StartWorkflow)
	e.POST("/workflows/:id/stop", h.StopWorkflow)
	e.GET("/workflows/:id/state", h.WorkflowState)
	e.POST("/api/workflows/:id/execute", h.ExecuteWorkflow)
	e.POST("/api/workflows/:id/nodes/:nodeId/execute", h.ExecuteNode)
}

// LoadWorkflow builds a workflow from the posted definition.
func (h *Handlers) LoadWorkflow(c echo.Context) error {
	id := c.Param("id")

	var def builder.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow definition: "+err.Error())
	}

	engine, err := h.manager.Load(id, &def)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"workflow_id": id,
		"nodes":       engine.Graph().Len(),
	})
}

// UnloadWorkflow stops and removes a loaded workflow.
func (h *Handlers) UnloadWorkflow(c echo.Context) error {
	id := c.Param("id")
	force := c.QueryParam("force") == "true"

	if err := h.manager.Remove(id, force); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"workflow_id": id, "status": "removed"})
}

// StartWorkflow launches the production runners for a loaded workflow.
func (h *Handlers) StartWorkflow(c echo.Context) error {
	id := c.Param("id")

	engine, err := h.manager.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err := engine.StartProduction(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"workflow_id": id, "status": events.StatusRunning})
}

// StopWorkflow signals the production runners to stop. With ?force=true
// in-flight node executions are cancelled instead of drained.
func (h *Handlers) StopWorkflow(c echo.Context) error {
	id := c.Param("id")
	force := c.QueryParam("force") == "true"

	engine, err := h.manager.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	engine.Shutdown(force)
	engine.WaitProduction()
	return c.JSON(http.StatusOK, map[string]string{"workflow_id": id, "status": "stopped"})
}

// WorkflowState returns the live execution state for a loaded workflow,
// falling back to the shared cache snapshot for workflows running
// elsewhere.
func (h *Handlers) WorkflowState(c echo.Context) error {
	id := c.Param("id")

	if engine, err := h.manager.Get(id); err == nil {
		return c.JSON(http.StatusOK, engine.FullState())
	}

	state, found, err := events.ReadSnapshot(c.Request().Context(), h.manager.components.Cache, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "no execution state for workflow "+id)
	}
	return c.JSON(http.StatusOK, state)
}

// ExecuteWorkflow runs a loaded workflow synchronously with the request
// body as input and returns the final node's output. A payload carrying
// the reserved HTTP response shape controls the status and body.
func (h *Handlers) ExecuteWorkflow(c echo.Context) error {
	id := c.Param("id")

	engine, err := h.manager.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	input := payload.New()
	if c.Request().ContentLength != 0 {
		var body map[string]any
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		input.Data = body
	}

	if mode := c.Request().Header.Get("X-Iterate-Mode"); mode != "" {
		input.Metadata[runner.MetaIterateMode] = mode
		if raw := c.Request().Header.Get("X-Iterate-Index"); raw != "" {
			if idx, err := strconv.Atoi(raw); err == nil {
				input.Metadata[runner.MetaIterateIndex] = idx
			}
		}
	}

	out, err := engine.ExecuteAPI(c.Request().Context(), input, requestContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if resp, ok := out.ExtractHTTPResponse(); ok {
		return c.JSON(resp.Status, resp.Body)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":       out.ID,
		"data":     out.Data,
		"metadata": out.Metadata,
	})
}

// ExecuteNode runs a single node from a loaded workflow in isolation.
// With an X-Session-Id header the node instance is kept between calls so
// stateful nodes carry over; without one a fresh instance runs each time.
func (h *Handlers) ExecuteNode(c echo.Context) error {
	id := c.Param("id")
	nodeID := c.Param("nodeId")

	engine, err := h.manager.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	fn, ok := engine.Graph().Get(nodeID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow "+id+" has no node "+nodeID)
	}

	sessionID := c.Request().Header.Get("X-Session-Id")
	n, err := h.sessionNode(c.Request().Context(), sessionID, nodeID, fn.Node.Config())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	input := payload.New()
	input.Metadata[payload.MetaAPIMode] = true
	if c.Request().ContentLength != 0 {
		var body map[string]any
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		input.Data = body
	}

	out, err := n.Run(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":       out.ID,
		"data":     out.Data,
		"metadata": out.Metadata,
	})
}

// sessionNode fetches the session's cached instance or builds, validates
// and initializes a fresh one.
func (h *Handlers) sessionNode(ctx context.Context, sessionID, nodeID string, cfg *payload.NodeConfig) (node.Node, error) {
	if sessionID != "" {
		if cached, ok := h.manager.sessions.Get(sessionID, nodeID); ok {
			return cached, nil
		}
	}

	n, err := h.manager.components.Registry.New(*cfg, h.manager.components.Services)
	if err != nil {
		return nil, err
	}
	if err := n.IsReady(); err != nil {
		return nil, err
	}
	n.MarkValidated()
	if err := n.Init(ctx); err != nil {
		return nil, err
	}

	if sessionID != "" {
		h.manager.sessions.Put(sessionID, nodeID, n)
	}
	return n, nil
}

func requestContext(c echo.Context) *runner.RequestContext {
	req := c.Request()

	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[name] = req.Header.Get(name)
	}
	query := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}
	return &runner.RequestContext{
		Method:  req.Method,
		Headers: headers,
		Query:   query,
	}
}
