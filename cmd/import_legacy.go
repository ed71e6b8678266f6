package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facepass/internal/database"
	"github.com/kozaktomas/facepass/internal/database/mariadb"
	"github.com/kozaktomas/facepass/internal/identity"
)

// legacyModel is the model recorded for descriptors computed by the old
// dlib based installation.
const legacyModel = "dlib"

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Import users, managers and faces from a legacy MySQL/MariaDB database",
	Long: `Copies users, managers and face encodings from an old FacePass
MySQL/MariaDB database into PostgreSQL.

Users and managers whose email already exists are skipped. Manager
password hashes are bcrypt in both systems and are copied unchanged.
Face encodings are stored numpy arrays; rows that cannot be decoded are
reported and skipped. The descriptor of an existing user is replaced.

Examples:
  facepass import-legacy --dsn 'facepass:secret@tcp(localhost:3306)/facepass'
  LEGACY_DATABASE_URL=... facepass import-legacy --dry-run`,
	Args: cobra.NoArgs,
	RunE: runImportLegacy,
}

func init() {
	rootCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().String("dsn", "", "Legacy database DSN (defaults to LEGACY_DATABASE_URL)")
	importLegacyCmd.Flags().Bool("dry-run", false, "Read and decode the legacy data without writing anything")
}

// importReport counts the outcome of an import.
type importReport struct {
	usersCreated     int
	usersExisting    int
	managersCreated  int
	managersExisting int
	facesImported    int
	facesSkipped     []string
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	dsn := mustGetString(cmd, "dsn")
	if dsn == "" {
		dsn = a.cfg.Legacy.DatabaseURL
	}
	if dsn == "" {
		return fmt.Errorf("legacy database DSN is required (--dsn or LEGACY_DATABASE_URL)")
	}

	legacy, err := mariadb.NewPool(dsn)
	if err != nil {
		return err
	}
	defer legacy.Close()

	users, err := legacy.ListUsers(ctx)
	if err != nil {
		return err
	}
	managers, err := legacy.ListManagers(ctx)
	if err != nil {
		return err
	}
	encodings, undecodable, err := legacy.ListEncodings(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Legacy database: %d users, %d managers, %d face encodings", len(users), len(managers), len(encodings))
	if len(undecodable) > 0 {
		fmt.Printf(" (%d undecodable)", len(undecodable))
	}
	fmt.Println()

	if mustGetBool(cmd, "dry-run") {
		printUndecodable(undecodable)
		return nil
	}

	var report importReport
	bar := progressbar.NewOptions(len(users)+len(managers)+len(encodings),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	userIDs := make(map[int64]int64, len(users))
	for _, lu := range users {
		newID, created, err := importUser(ctx, a.users, lu)
		if err != nil {
			bar.Finish()
			return fmt.Errorf("legacy user %d: %w", lu.ID, err)
		}
		userIDs[lu.ID] = newID
		if created {
			report.usersCreated++
		} else {
			report.usersExisting++
		}
		bar.Add(1)
	}

	for _, lm := range managers {
		created, err := importManager(ctx, a.managers, lm)
		if err != nil {
			bar.Finish()
			return fmt.Errorf("legacy manager %d: %w", lm.ID, err)
		}
		if created {
			report.managersCreated++
		} else {
			report.managersExisting++
		}
		bar.Add(1)
	}

	for _, enc := range encodings {
		newID, ok := userIDs[enc.UserID]
		switch {
		case !ok:
			report.facesSkipped = append(report.facesSkipped, fmt.Sprintf("encoding %d: unknown user %d", enc.ID, enc.UserID))
		default:
			if err := a.identity.EnrollDescriptor(ctx, newID, enc.Descriptor, legacyModel); err != nil {
				report.facesSkipped = append(report.facesSkipped, fmt.Sprintf("encoding %d: %v", enc.ID, err))
			} else {
				report.facesImported++
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("Users:    %d created, %d already present\n", report.usersCreated, report.usersExisting)
	fmt.Printf("Managers: %d created, %d already present\n", report.managersCreated, report.managersExisting)
	fmt.Printf("Faces:    %d imported, %d skipped\n", report.facesImported, len(report.facesSkipped)+len(undecodable))
	for _, s := range report.facesSkipped {
		fmt.Printf("  %s\n", s)
	}
	printUndecodable(undecodable)

	if report.facesImported > 0 {
		saveHNSWIndex(a.logger)
		fmt.Println("Run 'facepass index rebuild' if the server keeps an index file")
	}
	return nil
}

// importUser creates the user unless the email is already registered and
// returns the ID in the new database.
func importUser(ctx context.Context, users database.UserWriter, lu mariadb.LegacyUser) (int64, bool, error) {
	email := strings.ToLower(strings.TrimSpace(lu.Email))
	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	u := &database.User{
		Name:     strings.TrimSpace(lu.Name),
		Email:    email,
		CPF:      identity.NormalizeCPF(lu.CPF),
		Position: strings.TrimSpace(lu.Position),
	}
	if err := users.CreateUser(ctx, u); err != nil {
		return 0, false, err
	}
	if lu.Approved {
		if _, err := users.SetApproved(ctx, u.ID, true); err != nil {
			return 0, false, err
		}
	}
	return u.ID, true, nil
}

// importManager copies the manager with its password hash unless the
// email is already registered.
func importManager(ctx context.Context, managers database.ManagerWriter, lm mariadb.LegacyManager) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(lm.Email))
	existing, err := managers.GetManagerByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	m := &database.Manager{Name: strings.TrimSpace(lm.Name), Email: email, PasswordHash: lm.PasswordHash}
	if err := managers.CreateManager(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

func printUndecodable(undecodable map[int64]error) {
	if len(undecodable) == 0 {
		return
	}
	ids := make([]int64, 0, len(undecodable))
	for id := range undecodable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Printf("  encoding %d: %v\n", id, undecodable[id])
	}
}
