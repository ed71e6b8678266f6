package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Long: `Lists registered users.

Examples:
  facepass users list
  facepass users list --status pending`,
	Args: cobra.NoArgs,
	RunE: runUsersList,
}

var usersApproveCmd = &cobra.Command{
	Use:   "approve <user-id>",
	Short: "Approve a pending user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersApprove,
}

var usersRejectCmd = &cobra.Command{
	Use:   "reject <user-id>",
	Short: "Reject a pending user or remove an approved one",
	Long: `Deletes the user together with the enrolled face. Access registers
of the user are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersReject,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersApproveCmd)
	usersCmd.AddCommand(usersRejectCmd)

	usersListCmd.Flags().String("status", "", "Filter by status: pending, approved (default all)")
	usersListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.identity.ListUsers(ctx, mustGetString(cmd, "status"))
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}
	fmt.Printf("%-6s %-30s %-30s %-20s %-9s %s\n", "ID", "NAME", "EMAIL", "POSITION", "STATUS", "FACE")
	for _, u := range users {
		status := "pending"
		if u.Approved {
			status = "approved"
		}
		face := "no"
		if u.HasFace {
			face = "yes"
		}
		fmt.Printf("%-6d %-30s %-30s %-20s %-9s %s\n", u.ID, truncate(u.Name, 30), truncate(u.Email, 30), truncate(u.Position, 20), status, face)
	}
	fmt.Printf("\nTotal: %d users\n", len(users))
	return nil
}

func runUsersApprove(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.identity.Approve(ctx, userID); err != nil {
		return fmt.Errorf("failed to approve user %d: %w", userID, err)
	}
	fmt.Printf("Approved user %d\n", userID)
	return nil
}

func runUsersReject(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.identity.Remove(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove user %d: %w", userID, err)
	}
	fmt.Printf("Removed user %d\n", userID)
	return nil
}

// truncate shortens s to at most n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
