package app

import (
	"context"
	"log"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// wailsEmitter forwards service and session events to the frontend. The
// Wails context is fixed at startup; the per-call ctx is ignored because
// background work runs on contexts the runtime does not know.
type wailsEmitter struct {
	ctx context.Context
}

func (e wailsEmitter) Emit(_ context.Context, event string, data any) {
	wailsRuntime.EventsEmit(e.ctx, event, data)
}

// logEmitter stands in for the frontend when there is none (standalone MCP).
type logEmitter struct{}

func (logEmitter) Emit(_ context.Context, event string, _ any) {
	log.Printf("[MCP] event %s", event)
}
