package mcpserver

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"qrstudio/internal/domain"

	"github.com/google/uuid"
)

// Events the approval queue emits to the editor window.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// Row states of the mcp_approvals table.
const (
	approvalPending  = "pending"
	approvalApproved = "approved"
	approvalRejected = "rejected"
)

const (
	defaultApprovalTimeout = 120 * time.Second
	approvalPollInterval   = 500 * time.Millisecond
)

// EventEmitter allows the approval queue to notify the editor window.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction is a destructive tool call waiting for the user.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON, e.g. {"elementIds":[...]} to highlight
}

// ApprovalQueue blocks destructive tool calls until the user answers.
//
// Inside the desktop app requests travel over channels and window events.
// A standalone server has no window, so it writes requests to the
// mcp_approvals table, where the running app picks them up, and polls for
// the answer.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan bool
	emitter EventEmitter
	timeout time.Duration
	db      *sql.DB
}

func NewApprovalQueue(emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]chan bool),
		emitter: emitter,
		timeout: defaultApprovalTimeout,
	}
}

// SetDB switches the queue to table-based approvals.
func (q *ApprovalQueue) SetDB(db *sql.DB) {
	q.db = db
}

// Request asks the user to approve tool and waits for the answer. A
// rejection, a timeout or ctx ending all deny the action with
// domain.ErrAccessDenied.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description string, metadata ...string) (bool, error) {
	action := PendingAction{
		ID:          uuid.New().String(),
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    "{}",
	}
	if len(metadata) > 0 && metadata[0] != "" {
		action.Metadata = metadata[0]
	}
	log.Printf("[MCP] approval requested for %s: %s", tool, description)

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var (
		approved bool
		err      error
	)
	if q.db != nil {
		approved, err = q.waitInTable(ctx, action)
	} else {
		approved, err = q.waitOnChannel(ctx, action)
	}
	if err != nil {
		return false, err
	}
	if !approved {
		return false, fmt.Errorf("%w: %s rejected by user", domain.ErrAccessDenied, tool)
	}
	return true, nil
}

func (q *ApprovalQueue) waitInTable(ctx context.Context, action PendingAction) (bool, error) {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO mcp_approvals (id, tool, description, status, metadata) VALUES (?, ?, ?, ?, ?)`,
		action.ID, action.Tool, action.Description, approvalPending, action.Metadata,
	)
	if err != nil {
		return false, fmt.Errorf("insert approval: %w", err)
	}
	defer q.db.Exec(`DELETE FROM mcp_approvals WHERE id = ?`, action.ID)

	ticker := time.NewTicker(approvalPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var status string
			if err := q.db.QueryRowContext(ctx, `SELECT status FROM mcp_approvals WHERE id = ?`, action.ID).Scan(&status); err != nil {
				continue
			}
			switch status {
			case approvalApproved:
				return true, nil
			case approvalRejected:
				return false, nil
			}
		case <-ctx.Done():
			return false, q.expired(ctx, action.Tool)
		}
	}
}

func (q *ApprovalQueue) waitOnChannel(ctx context.Context, action PendingAction) (bool, error) {
	ch := make(chan bool, 1)
	q.mu.Lock()
	q.pending[action.ID] = ch
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.pending, action.ID)
		q.mu.Unlock()
	}()

	if q.emitter != nil {
		q.emitter.Emit(ctx, EventApprovalRequired, action)
	}
	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		if q.emitter != nil {
			q.emitter.Emit(context.Background(), EventApprovalDismissed, map[string]string{"id": action.ID})
		}
		return false, q.expired(ctx, action.Tool)
	}
}

func (q *ApprovalQueue) expired(ctx context.Context, tool string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %s timed out after %s", domain.ErrAccessDenied, tool, q.timeout)
	}
	return fmt.Errorf("%w: %s cancelled", domain.ErrAccessDenied, tool)
}

// Approve answers a pending in-process request.
func (q *ApprovalQueue) Approve(actionID string) { q.answer(actionID, true) }

// Reject answers a pending in-process request.
func (q *ApprovalQueue) Reject(actionID string) { q.answer(actionID, false) }

func (q *ApprovalQueue) answer(actionID string, approved bool) {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if ok {
		select {
		case ch <- approved:
		default:
		}
	}
}

// ── Table access for the desktop side ──────────────────────

// PendingApprovals lists requests written by a standalone server that the
// user has not answered yet.
func PendingApprovals(ctx context.Context, db *sql.DB) ([]PendingAction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tool, description, metadata, created_at FROM mcp_approvals WHERE status = ? ORDER BY created_at`,
		approvalPending)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []PendingAction
	for rows.Next() {
		var a PendingAction
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveApproval records the user's answer to a table-based request.
func ResolveApproval(ctx context.Context, db *sql.DB, actionID string, approved bool) error {
	status := approvalRejected
	if approved {
		status = approvalApproved
	}
	res, err := db.ExecContext(ctx,
		`UPDATE mcp_approvals SET status = ? WHERE id = ? AND status = ?`, status, actionID, approvalPending)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s: %w", actionID, domain.ErrNotFound)
	}
	return nil
}
