package app

import (
	mcpserver "qrstudio/internal/mcp"
)

// ============================================================
// Agent approvals
// ============================================================

// PendingMCPActions lists destructive agent actions waiting for the user.
func (a *App) PendingMCPActions() ([]mcpserver.PendingAction, error) {
	return mcpserver.PendingApprovals(a.ctx, a.db.Conn())
}

func (a *App) ApproveMCPAction(actionID string) error {
	return a.bound("approve action", true, func() error {
		return mcpserver.ResolveApproval(a.ctx, a.db.Conn(), actionID, true)
	})
}

func (a *App) RejectMCPAction(actionID string) error {
	return a.bound("reject action", true, func() error {
		return mcpserver.ResolveApproval(a.ctx, a.db.Conn(), actionID, false)
	})
}
