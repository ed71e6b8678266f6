package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect manager notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the notifications of a manager",
	Long: `Lists notifications of one manager, newest first.

Examples:
  facepass notifications list --manager 1
  facepass notifications list --manager 1 --unread`,
	Args: cobra.NoArgs,
	RunE: runNotificationsList,
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)

	notificationsListCmd.Flags().Int64("manager", 0, "Manager ID")
	notificationsListCmd.Flags().Bool("unread", false, "Show only unread notifications")
	_ = notificationsListCmd.MarkFlagRequired("manager")
}

func runNotificationsList(cmd *cobra.Command, args []string) error {
	managerID := mustGetInt64(cmd, "manager")
	if managerID <= 0 {
		return fmt.Errorf("invalid manager ID %d", managerID)
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.notifications.ListNotifications(ctx, managerID, mustGetBool(cmd, "unread"))
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}
	unread, err := a.notifications.CountUnread(ctx, managerID)
	if err != nil {
		return fmt.Errorf("failed to count unread notifications: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No notifications")
		return nil
	}
	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Printf("%s %-6d %s  %-17s %s\n", mark, n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Type, n.Message)
	}
	fmt.Printf("\n%d notifications, %d unread\n", len(list), unread)
	return nil
}
