package domain

import (
	"errors"
	"log"
	"runtime/debug"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("not signed in")
	ErrAccessDenied    = errors.New("access denied by storage policy")
	ErrStorage         = errors.New("storage error")
	ErrRemote          = errors.New("remote processing failed")
	ErrNotFound        = errors.New("not found")
	ErrNoDocument      = errors.New("no document loaded")
	ErrLocked          = errors.New("element is locked")
)

// NotificationKind drives how the frontend presents a Notification.
type NotificationKind string

const (
	NotifyWarning  NotificationKind = "warning"  // dismissable toast
	NotifyAuth     NotificationKind = "auth"     // prompts re-login
	NotifyFailure  NotificationKind = "failure"  // toast, state left intact
	NotifyFallback NotificationKind = "fallback" // generic error view, "go back" only
	NotifySuccess  NotificationKind = "success"
)

// Notification is the user-facing form of an error. It never carries
// diagnostic detail for unexpected errors.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Dismissable bool             `json:"dismissable"`
}

// NotificationFor maps err onto the error taxonomy. Unknown errors are logged
// and collapse to the generic fallback.
func NotificationFor(err error) Notification {
	switch {
	case errors.Is(err, ErrValidation):
		return Notification{Kind: NotifyWarning, Title: "Invalid input", Message: err.Error(), Dismissable: true}
	case errors.Is(err, ErrUnauthenticated):
		return Notification{Kind: NotifyAuth, Title: "Session expired", Message: "Please sign in again to continue."}
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrStorage):
		return Notification{Kind: NotifyFailure, Title: "Upload failed", Message: "The file could not be stored. Please try again.", Dismissable: true}
	case errors.Is(err, ErrRemote):
		return Notification{Kind: NotifyFailure, Title: "Processing failed", Message: "The document service could not complete the request.", Dismissable: true}
	case errors.Is(err, ErrNoDocument):
		return Notification{Kind: NotifyWarning, Title: "No document", Message: "Load a document before editing.", Dismissable: true}
	case errors.Is(err, ErrLocked):
		return Notification{Kind: NotifyWarning, Title: "Locked", Message: "Unlock the element to change it.", Dismissable: true}
	case errors.Is(err, ErrNotFound):
		return Notification{Kind: NotifyWarning, Title: "Not found", Message: "The item no longer exists.", Dismissable: true}
	}
	log.Printf("[Error] unexpected: %v", err)
	return fallbackNotification()
}

func fallbackNotification() Notification {
	return Notification{Kind: NotifyFallback, Title: "Something went wrong", Message: "Go back and try again."}
}

// RecoverToNotification is deferred at bound-method boundaries. A panic is
// logged with its stack and reported to the caller as the generic fallback.
//
//	defer domain.RecoverToNotification(&n)
func RecoverToNotification(n *Notification) {
	if r := recover(); r != nil {
		log.Printf("[Error] recovered panic: %v\n%s", r, debug.Stack())
		if n != nil {
			*n = fallbackNotification()
		}
	}
}
