package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facepass/internal/database"
)

// messageTimeFormat matches the dd/mm/yyyy HH:MM:SS layout managers expect.
const messageTimeFormat = "02/01/2006 15:04:05"

// ManagerNotifier stores denial notifications for managers.
type ManagerNotifier struct {
	notifications database.NotificationWriter
	managers      database.ManagerReader
}

// NewManagerNotifier creates a notifier writing to the notification store.
// managers is used to fan out when no recipient is given.
func NewManagerNotifier(notifications database.NotificationWriter, managers database.ManagerReader) *ManagerNotifier {
	return &ManagerNotifier{notifications: notifications, managers: managers}
}

// NotifyDenied creates an access_denied notification for recipientID, or for
// every manager when recipientID is 0.
func (n *ManagerNotifier) NotifyDenied(ctx context.Context, d *Decision, registerID, recipientID int64) error {
	if d == nil || d.Allowed {
		return nil
	}

	recipients := []int64{recipientID}
	if recipientID == 0 {
		managers, err := n.managers.ListManagers(ctx)
		if err != nil {
			return fmt.Errorf("list managers: %w", err)
		}
		recipients = recipients[:0]
		for _, m := range managers {
			recipients = append(recipients, m.ID)
		}
	}

	msg := DeniedMessage(d)
	var errs []error
	for _, managerID := range recipients {
		notif := &database.Notification{
			ManagerID: managerID,
			Type:      database.NotificationAccessDenied,
			Message:   msg,
		}
		if registerID > 0 {
			id := registerID
			notif.AccessRegisterID = &id
		}
		if err := n.notifications.CreateNotification(ctx, notif); err != nil {
			errs = append(errs, fmt.Errorf("manager %d: %w", managerID, err))
		}
	}
	return errors.Join(errs...)
}

// DeniedMessage renders the notification text for a denied decision.
func DeniedMessage(d *Decision) string {
	reason := string(d.Reason)
	if reason == "" {
		reason = "unspecified"
	}
	when := d.Timestamp.Format(messageTimeFormat)
	if d.UserName != "" {
		return fmt.Sprintf("Access denied for user %s at %s. Reason: %s. Time: %s", d.UserName, d.Location, reason, when)
	}
	return fmt.Sprintf("Access attempt by %s at %s. Reason: %s. Time: %s", UnrecognizedPerson, d.Location, reason, when)
}
