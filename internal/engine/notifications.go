package engine

import (
	"context"
	"fmt"

	"github.com/dyluth/tally/pkg/fulfillment"
)

// notifyLocked appends a notification to w. Caller holds the workspace lock.
func (e *Engine) notifyLocked(w *fulfillment.Workspace, kind fulfillment.NotificationKind, checklistID, format string, a ...interface{}) {
	w.Notify(fulfillment.Notification{
		ID:          e.newID(),
		Kind:        kind,
		Message:     fmt.Sprintf(format, a...),
		ChecklistID: checklistID,
		CreatedAtMs: e.now().UnixMilli(),
	}, e.notifyLimit)
}

// Notify posts a free-form notification to a workspace feed.
func (e *Engine) Notify(ctx context.Context, workspaceID string, kind fulfillment.NotificationKind, message string) (*fulfillment.Workspace, error) {
	const op = "notify"
	switch kind {
	case fulfillment.NotifyInfo, fulfillment.NotifySuccess, fulfillment.NotifyWarning, fulfillment.NotifyError:
	case "":
		kind = fulfillment.NotifyInfo
	default:
		return nil, fulfillment.NewError(fulfillment.KindValidation, op, "unknown notification kind %q", kind)
	}
	if message == "" {
		return nil, fulfillment.NewError(fulfillment.KindValidation, op, "message cannot be empty")
	}
	return e.mutateWorkspace(ctx, op, workspaceID, func(w *fulfillment.Workspace) error {
		e.notifyLocked(w, kind, "", "%s", message)
		return nil
	})
}

// Notifications returns a workspace's feed, oldest first, and its unread count.
func (e *Engine) Notifications(workspaceID string) ([]fulfillment.Notification, int, error) {
	w, err := e.Workspace(workspaceID)
	if err != nil {
		return nil, 0, err
	}
	return w.Notifications, w.UnreadCount, nil
}

// MarkNotificationRead marks one notification read.
func (e *Engine) MarkNotificationRead(ctx context.Context, workspaceID, notificationID string) (*fulfillment.Workspace, error) {
	const op = "mark_read"
	return e.mutateWorkspace(ctx, op, workspaceID, func(w *fulfillment.Workspace) error {
		if !w.MarkRead(notificationID) {
			return fulfillment.NewError(fulfillment.KindNotFound, op, "notification %s not found", notificationID)
		}
		return nil
	})
}

// MarkAllNotificationsRead marks every notification of a workspace read.
func (e *Engine) MarkAllNotificationsRead(ctx context.Context, workspaceID string) (*fulfillment.Workspace, error) {
	return e.mutateWorkspace(ctx, "mark_all_read", workspaceID, func(w *fulfillment.Workspace) error {
		w.MarkAllRead()
		return nil
	})
}

// ClearNotifications empties a workspace feed.
func (e *Engine) ClearNotifications(ctx context.Context, workspaceID string) (*fulfillment.Workspace, error) {
	return e.mutateWorkspace(ctx, "clear_notifications", workspaceID, func(w *fulfillment.Workspace) error {
		w.ClearNotifications()
		return nil
	})
}
