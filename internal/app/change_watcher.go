package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	mcpserver "qrstudio/internal/mcp"
	"qrstudio/internal/service"
)

// Events the change watcher emits.
const (
	EventTemplatesChanged = "data:templates-changed"
	EventCampaignsChanged = "data:campaigns-changed"
	EventRowsChanged      = "data:rows-changed"
)

const watchInterval = 2 * time.Second

// changeWatcher polls the database for changes made by another process
// (the standalone MCP server) and emits events so the frontend refreshes.
// It also forwards approval requests that process writes to mcp_approvals.
type changeWatcher struct {
	ctx     context.Context
	db      *sql.DB
	emitter service.EventEmitter

	mu         sync.Mutex
	campaignID string // campaign whose rows are on screen
	lastTpl    string // fingerprints: count + max updated_at
	lastCamp   string
	lastRows   string
	approvals  map[string]bool // emitted and still pending

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newChangeWatcher(ctx context.Context, db *sql.DB, emitter service.EventEmitter) *changeWatcher {
	return &changeWatcher{ctx: ctx, db: db, emitter: emitter, approvals: map[string]bool{}}
}

// SetCampaign switches the watched rows to campaignID.
func (w *changeWatcher) SetCampaign(campaignID string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.campaignID != campaignID {
		w.campaignID = campaignID
		w.lastRows = ""
	}
}

// Start begins the polling loop. Should be called once on app startup.
func (w *changeWatcher) Start() {
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.pollLoop()
}

// Stop terminates the polling loop and waits for it.
func (w *changeWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.wg.Wait()
		w.stopCh = nil
	}
}

func (w *changeWatcher) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stopCh:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *changeWatcher) fingerprint(query string, args ...any) (string, error) {
	var n int
	var last string
	if err := w.db.QueryRowContext(w.ctx, query, args...).Scan(&n, &last); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d|%s", n, last), nil
}

// check runs one poll. The first poll only records fingerprints.
func (w *changeWatcher) check() {
	tpl, err := w.fingerprint(`SELECT COUNT(*), COALESCE(MAX(updated_at), '') FROM templates`)
	if err != nil {
		log.Printf("[App] watcher: templates: %v", err)
		return
	}
	camp, err := w.fingerprint(`SELECT COUNT(*), COALESCE(MAX(updated_at), '') FROM campaigns`)
	if err != nil {
		log.Printf("[App] watcher: campaigns: %v", err)
		return
	}

	w.mu.Lock()
	campaignID := w.campaignID
	w.mu.Unlock()
	var rows string
	if campaignID != "" {
		if rows, err = w.fingerprint(
			`SELECT COUNT(*), COALESCE(MAX(updated_at), '') FROM data_rows WHERE campaign_id = ?`, campaignID,
		); err != nil {
			log.Printf("[App] watcher: rows: %v", err)
			return
		}
	}

	w.mu.Lock()
	tplChanged := w.lastTpl != "" && tpl != w.lastTpl
	campChanged := w.lastCamp != "" && camp != w.lastCamp
	rowsChanged := campaignID != "" && w.campaignID == campaignID && w.lastRows != "" && rows != w.lastRows
	w.lastTpl, w.lastCamp = tpl, camp
	if w.campaignID == campaignID {
		w.lastRows = rows
	}
	w.mu.Unlock()

	if tplChanged {
		w.emitter.Emit(w.ctx, EventTemplatesChanged, nil)
	}
	if campChanged {
		w.emitter.Emit(w.ctx, EventCampaignsChanged, nil)
	}
	if rowsChanged {
		w.emitter.Emit(w.ctx, EventRowsChanged, map[string]string{"campaignId": campaignID})
	}

	w.forwardApprovals()
}

// forwardApprovals emits each new pending approval once, and dismisses the
// ones the other process gave up on.
func (w *changeWatcher) forwardApprovals() {
	pending, err := mcpserver.PendingApprovals(w.ctx, w.db)
	if err != nil {
		log.Printf("[MCP] watcher: %v", err)
		return
	}
	current := make(map[string]bool, len(pending))
	var fresh []mcpserver.PendingAction
	w.mu.Lock()
	for _, p := range pending {
		current[p.ID] = true
		if !w.approvals[p.ID] {
			w.approvals[p.ID] = true
			fresh = append(fresh, p)
		}
	}
	var gone []string
	for id := range w.approvals {
		if !current[id] {
			delete(w.approvals, id)
			gone = append(gone, id)
		}
	}
	w.mu.Unlock()

	for _, p := range fresh {
		w.emitter.Emit(w.ctx, mcpserver.EventApprovalRequired, p)
	}
	for _, id := range gone {
		w.emitter.Emit(w.ctx, mcpserver.EventApprovalDismissed, map[string]string{"id": id})
	}
}
