package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facepass/internal/access"
)

var accessCmd = &cobra.Command{
	Use:   "access <image>",
	Short: "Decide an access attempt from an image file",
	Long: `Runs the full access flow on an image file: face extraction,
identification against the enrolled gallery and the approval check.
The attempt is written to the access log and denied attempts notify
managers, exactly as attempts received over HTTP.

Examples:
  facepass access capture.jpg
  facepass access capture.jpg --location "Garagem" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAccess,
}

func init() {
	rootCmd.AddCommand(accessCmd)

	accessCmd.Flags().String("location", "", "Location of the terminal (defaults to ACCESS_DEFAULT_LOCATION)")
	accessCmd.Flags().Int64("notify", 0, "Manager to notify on denial (0 uses ACCESS_NOTIFY_MANAGER_ID)")
	accessCmd.Flags().Bool("json", false, "Output the decision as JSON")
}

func runAccess(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	recorder := a.newRecorder(true)
	defer recorder.Close()
	orchestrator := a.newOrchestrator(recorder, nil)

	decision, procErr := orchestrator.Process(ctx, access.Attempt{
		Image:       image,
		Location:    mustGetString(cmd, "location"),
		RecipientID: mustGetInt64(cmd, "notify"),
	})

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(decision); err != nil {
			return err
		}
		return procErr
	}

	printDecision(decision)
	return procErr
}

func printDecision(d *access.Decision) {
	if d == nil {
		return
	}
	if d.Allowed {
		fmt.Printf("ACCESS ALLOWED: %s", d.UserName)
		if d.Position != "" {
			fmt.Printf(" (%s)", d.Position)
		}
		fmt.Println()
	} else {
		fmt.Printf("ACCESS DENIED: %s\n", d.Reason)
		if d.Recognized() {
			fmt.Printf("  User:       %s (ID %d)\n", d.NotifyName(), d.UserID)
		}
	}
	fmt.Printf("  Attempt:    %s\n", d.AttemptID)
	fmt.Printf("  Location:   %s\n", d.Location)
	fmt.Printf("  Faces:      %d\n", d.FacesFound)
	if d.Recognized() {
		fmt.Printf("  Confidence: %.1f%% (distance %.4f)\n", d.Confidence*100, d.Distance)
	}
}
