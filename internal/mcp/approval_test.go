package mcpserver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qrstudio/internal/domain"
	"qrstudio/internal/storage"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	last   any
}

func (e *recordingEmitter) Emit(_ context.Context, event string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	e.last = data
}

func (e *recordingEmitter) pending() (PendingAction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.last.(PendingAction)
	return a, ok
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApproval_InProcessApprove(t *testing.T) {
	em := &recordingEmitter{}
	q := NewApprovalQueue(em)

	done := make(chan error, 1)
	go func() {
		ok, err := q.Request(context.Background(), "delete_element", "Delete qr element", `{"elementIds":["a"]}`)
		if err == nil && !ok {
			err = errors.New("not approved")
		}
		done <- err
	}()

	var action PendingAction
	waitFor(t, func() bool {
		var ok bool
		action, ok = em.pending()
		return ok
	})
	if action.Tool != "delete_element" || action.Metadata != `{"elementIds":["a"]}` {
		t.Errorf("action = %+v", action)
	}
	q.Approve(action.ID)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestApproval_InProcessReject(t *testing.T) {
	em := &recordingEmitter{}
	q := NewApprovalQueue(em)

	done := make(chan error, 1)
	go func() {
		_, err := q.Request(context.Background(), "import_campaign_rows", "Import")
		done <- err
	}()
	waitFor(t, func() bool { _, ok := em.pending(); return ok })
	action, _ := em.pending()
	q.Reject(action.ID)

	if err := <-done; !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("err = %v", err)
	}
}

func TestApproval_TimeoutDismisses(t *testing.T) {
	em := &recordingEmitter{}
	q := NewApprovalQueue(em)
	q.timeout = 50 * time.Millisecond

	ok, err := q.Request(context.Background(), "delete_element", "Delete")
	if ok || !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("ok = %v, err = %v", ok, err)
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if n := len(em.events); n != 2 || em.events[1] != EventApprovalDismissed {
		t.Errorf("events = %v", em.events)
	}
}

func TestApproval_TableMode(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "qrstudio.db"), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	q := NewApprovalQueue(nil)
	q.SetDB(db.Conn())

	done := make(chan bool, 1)
	go func() {
		ok, _ := q.Request(context.Background(), "delete_element", "Delete text element on page 1")
		done <- ok
	}()

	ctx := context.Background()
	var pending []PendingAction
	waitFor(t, func() bool {
		pending, err = PendingApprovals(ctx, db.Conn())
		return err == nil && len(pending) == 1
	})
	if pending[0].Description != "Delete text element on page 1" {
		t.Errorf("pending = %+v", pending[0])
	}
	if err := ResolveApproval(ctx, db.Conn(), pending[0].ID, true); err != nil {
		t.Fatal(err)
	}
	if !<-done {
		t.Fatal("expected approval")
	}

	// Answered rows are removed.
	waitFor(t, func() bool {
		pending, err = PendingApprovals(ctx, db.Conn())
		return err == nil && len(pending) == 0
	})
	if err := ResolveApproval(ctx, db.Conn(), "missing", false); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("resolve missing: %v", err)
	}
}
