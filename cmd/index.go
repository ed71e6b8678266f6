package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the nearest-identity index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW index from the stored descriptors",
	Long: `Rebuilds the in-memory HNSW index over all enrolled descriptors and
saves it to HNSW_INDEX_PATH when that is set, so the next server start
can load it instead of rebuilding.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and gallery sizes",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexNearestCmd = &cobra.Command{
	Use:   "nearest <image>",
	Short: "List the enrolled users closest to the face in an image",
	Long: `Extracts the face in an image and lists the k enrolled users with the
smallest descriptor distance. It is a diagnostic aid for tuning the
recognition tolerance; access decisions never use it.

Examples:
  facepass index nearest capture.jpg
  facepass index nearest capture.jpg --k 10`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexNearest,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexNearestCmd)

	indexNearestCmd.Flags().Int("k", 5, "Number of users to list")
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{hnsw: true})
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	if err := a.descriptorRepo.RebuildHNSW(ctx); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	fmt.Printf("Rebuilt index with %d descriptors in %s\n", a.descriptorRepo.HNSWCount(), time.Since(start).Round(time.Millisecond))

	if a.cfg.Database.HNSWIndexPath == "" {
		fmt.Println("HNSW_INDEX_PATH is not set, index not saved")
		return nil
	}
	fmt.Printf("Saved index to %s\n", a.cfg.Database.HNSWIndexPath)
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{hnsw: true})
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := a.descriptorRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count descriptors: %w", err)
	}

	fmt.Printf("Enrolled descriptors: %d\n", stored)
	fmt.Printf("HNSW enabled:         %v\n", a.descriptorRepo.IsHNSWEnabled())
	fmt.Printf("HNSW nodes:           %d\n", a.descriptorRepo.HNSWCount())
	if path := a.cfg.Database.HNSWIndexPath; path != "" {
		fmt.Printf("Index file:           %s\n", path)
	}
	if a.descriptorRepo.IsHNSWEnabled() && a.descriptorRepo.HNSWCount() != stored {
		fmt.Println("Index is out of date, run 'facepass index rebuild'")
	}
	return nil
}

func runIndexNearest(cmd *cobra.Command, args []string) error {
	k := mustGetInt(cmd, "k")
	if k <= 0 {
		return fmt.Errorf("invalid --k %d", k)
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{hnsw: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.extractor.ExtractFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to extract face: %w", err)
	}
	if !res.Found() {
		return fmt.Errorf("no face detected in %s", args[0])
	}

	neighbors, err := a.descriptorRepo.Nearest(ctx, res.Descriptor, k)
	if err != nil {
		return fmt.Errorf("failed to query index: %w", err)
	}
	if len(neighbors) == 0 {
		fmt.Println("No enrolled users")
		return nil
	}

	tolerance := a.matcher.Tolerance()
	fmt.Printf("%-8s %-30s %-10s %-11s %s\n", "USER", "NAME", "DISTANCE", "CONFIDENCE", "MATCH")
	for _, n := range neighbors {
		name := "?"
		if u, err := a.users.GetUser(ctx, n.UserID); err == nil && u != nil {
			name = u.Name
		}
		match := ""
		if n.Distance <= tolerance {
			match = "yes"
		}
		fmt.Printf("%-8d %-30s %-10.4f %-11s %s\n", n.UserID, truncate(name, 30), n.Distance, fmt.Sprintf("%.1f%%", n.Confidence*100), match)
	}
	return nil
}
