package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyzr/flowengine/common/bootstrap"
	"github.com/lyzr/flowengine/common/server"
	"github.com/lyzr/flowengine/flow/builder"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "flowengine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap flowengine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown()

	manager := NewManager(components)

	// Optionally preload a workflow definition from disk and start it
	if err := preloadWorkflow(ctx, manager); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to preload workflow: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	NewHandlers(manager).Register(e)

	srv := server.New("flowengine", components.Config.Service.Port, e,
		components.Logger, components.Config.Engine.ShutdownTimeout)
	if err := srv.Start(manager.Shutdown); err != nil {
		components.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// preloadWorkflow loads WORKFLOW_FILE at startup when set. When
// WORKFLOW_AUTOSTART is true the production runners start immediately.
func preloadWorkflow(ctx context.Context, manager *Manager) error {
	path := os.Getenv("WORKFLOW_FILE")
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var def builder.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	id := os.Getenv("WORKFLOW_ID")
	if id == "" {
		id = "default"
	}

	engine, err := manager.Load(id, &def)
	if err != nil {
		return err
	}
	if os.Getenv("WORKFLOW_AUTOSTART") == "true" {
		return engine.StartProduction(ctx)
	}
	return nil
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "flowengine",
		})
	})
}
