package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facepass/internal/identity"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <user-id> <image>",
	Short: "Enroll or replace the face of a user",
	Long: `Extracts the face descriptor from an image and stores it as the
enrolled face of the user, replacing any previous one.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <dir>",
	Short: "Enroll faces from a directory of images named <user-id>.<ext>",
	Long: `Enrolls every image in a directory whose file name is a user ID,
for example 12.jpg or 40.png. Files that do not match are skipped.

Examples:
  facepass enroll-dir ./photos
  facepass enroll-dir ./photos --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(enrollDirCmd)

	enrollDirCmd.Flags().Bool("dry-run", false, "List the files that would be enrolled without enrolling them")
}

func runEnroll(cmd *cobra.Command, args []string) error {
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

	res, err := a.identity.EnrollFace(ctx, userID, photo)
	if err != nil {
		return fmt.Errorf("failed to enroll user %d: %w", userID, err)
	}

	fmt.Printf("Enrolled face of user %d\n", userID)
	fmt.Printf("  Faces in image: %d\n", res.FacesFound)
	fmt.Printf("  Model:          %s\n", res.Model)
	if res.FacesFound > 1 {
		fmt.Println("  Warning: more than one face detected, the first one was used")
	}
	return nil
}

// enrollFile is an image whose name identifies the user it belongs to.
type enrollFile struct {
	userID int64
	path   string
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true}

// scanEnrollDir lists images named <user-id>.<ext>, ordered by user ID.
func scanEnrollDir(dir string) ([]enrollFile, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []enrollFile
	var skipped []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !imageExtensions[ext] {
			skipped = append(skipped, e.Name())
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), 10, 64)
		if err != nil || id <= 0 {
			skipped = append(skipped, e.Name())
			continue
		}
		files = append(files, enrollFile{userID: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].userID < files[j].userID })
	return files, skipped, nil
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	files, skipped, err := scanEnrollDir(args[0])
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		fmt.Printf("Skipping %d files not named <user-id>.<ext>\n", len(skipped))
	}
	if len(files) == 0 {
		fmt.Println("No images to enroll")
		return nil
	}

	if mustGetBool(cmd, "dry-run") {
		for _, f := range files {
			fmt.Printf("  user %d <- %s\n", f.userID, f.path)
		}
		return nil
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	var enrolled int
	var failures []string
	for _, f := range files {
		photo, err := os.ReadFile(f.path)
		if err == nil {
			_, err = a.identity.EnrollFace(ctx, f.userID, photo)
		}
		if err != nil {
			reason := err.Error()
			if errors.Is(err, identity.ErrUserNotFound) {
				reason = "user not found"
			}
			failures = append(failures, fmt.Sprintf("%s: %s", filepath.Base(f.path), reason))
		} else {
			enrolled++
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("Enrolled %d of %d images\n", enrolled, len(files))
	for _, f := range failures {
		fmt.Printf("  failed %s\n", f)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d images failed", len(failures))
	}
	return nil
}
