package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrstudio/internal/config"
	mcpserver "qrstudio/internal/mcp"
)

// ServeMCP runs the app as a standalone MCP server on stdin/stdout with no GUI.
// Destructive tools ask for approval through the shared database, where a
// running desktop app picks the requests up.
func ServeMCP() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the protocol.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	c, err := newCore(ctx, cfg, logEmitter{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer c.close()

	mcpSrv := mcpserver.New(mcpserver.Deps{
		Emitter:    logEmitter{},
		Editors:    c.editors,
		Templates:  c.templates,
		Campaigns:  c.campaigns,
		Imports:    c.imports,
		Generator:  c.gen,
		ApprovalDB: c.db.Conn(),
	})

	log.Println("[MCP] Starting standalone stdio server...")
	if err := mcpSrv.ServeStdio(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
