// Package gate checks task status changes against the current session
// before they are sent to the server. The server repeats the check; a local
// denial only saves the round trip.
package gate

import (
	"context"
	"fmt"

	"taskweb/internal/client"
	"taskweb/internal/domain/authz"
	"taskweb/internal/domain/model"
)

// StatusUpdater persists a status change. It returns client.ErrSessionExpired
// on 401 and client.ErrForbidden on 403.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, taskID int64, status model.TaskStatus) (*model.Task, error)
}

// Session is the part of session.Manager the gate depends on.
type Session interface {
	CurrentUser() *model.User
	Expire(ctx context.Context, err error) error
}

type TransitionGate struct {
	session Session
	updater StatusUpdater
}

func NewTransitionGate(session Session, updater StatusUpdater) *TransitionGate {
	return &TransitionGate{session: session, updater: updater}
}

// ChangeStatus moves task to status if the session user may do so.
func (g *TransitionGate) ChangeStatus(ctx context.Context, task model.Task, status model.TaskStatus) (*model.Task, error) {
	if err := g.Check(task, status); err != nil {
		return nil, err
	}

	updated, err := g.updater.UpdateStatus(ctx, task.ID, status)
	if err != nil {
		return nil, g.session.Expire(ctx, err)
	}
	return updated, nil
}

// Check runs the local part of ChangeStatus without contacting the server.
func (g *TransitionGate) Check(task model.Task, status model.TaskStatus) error {
	user := g.session.CurrentUser()
	if user == nil {
		return fmt.Errorf("changing the status of task %d: %w", task.ID, client.ErrNotAuthenticated)
	}
	if !authz.CanChangeStatus(user, task) {
		return fmt.Errorf("changing the status of task %d: %w", task.ID, client.ErrForbidden)
	}
	if !status.Valid() || !task.Status.CanTransitionTo(status) {
		return fmt.Errorf("task %d cannot move from %s to %s: %w", task.ID, task.Status, status, client.ErrInvalidTransition)
	}
	return nil
}
