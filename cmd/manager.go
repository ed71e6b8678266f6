package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facepass/internal/identity"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Manage manager accounts",
}

var managerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a manager account",
	Long: `Creates a manager who can log in to the API, approve users and
receive notifications.

Examples:
  facepass manager create --name "Ana Souza" --email ana@example.com --password s3cret`,
	Args: cobra.NoArgs,
	RunE: runManagerCreate,
}

func init() {
	rootCmd.AddCommand(managerCmd)
	managerCmd.AddCommand(managerCreateCmd)

	managerCreateCmd.Flags().String("name", "", "Manager name")
	managerCreateCmd.Flags().String("email", "", "Manager email, used to log in")
	managerCreateCmd.Flags().String("password", "", "Manager password")
	_ = managerCreateCmd.MarkFlagRequired("name")
	_ = managerCreateCmd.MarkFlagRequired("email")
	_ = managerCreateCmd.MarkFlagRequired("password")
}

func runManagerCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.identity.CreateManager(ctx, identity.NewManager{
		Name:     mustGetString(cmd, "name"),
		Email:    mustGetString(cmd, "email"),
		Password: mustGetString(cmd, "password"),
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	fmt.Printf("Created manager %d (%s)\n", m.ID, m.Email)
	return nil
}
