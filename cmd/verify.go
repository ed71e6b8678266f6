package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <user-id> <image>",
	Short: "Check whether an image shows a given user",
	Long: `Compares the face in an image with the enrolled face of one user.
Nothing is written to the access log.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	photo, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, match, err := a.identity.VerifyFace(ctx, userID, photo)
	if err != nil {
		return fmt.Errorf("failed to verify user %d: %w", userID, err)
	}

	if match {
		fmt.Printf("MATCH: image shows user %d\n", userID)
	} else {
		fmt.Printf("NO MATCH: image does not show user %d\n", userID)
	}
	fmt.Printf("  Distance:   %.4f (tolerance %.2f)\n", result.Distance, a.matcher.Tolerance())
	fmt.Printf("  Confidence: %.1f%%\n", result.Confidence*100)
	return nil
}
