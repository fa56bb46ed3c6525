package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/medcore/hospital/internal/config"
	"github.com/medcore/hospital/internal/domain/identity"
	"github.com/medcore/hospital/internal/platform/db"
	"github.com/medcore/hospital/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hospital-server",
		Short: "Hospital management portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(provisionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns the embedded schema unless dir points elsewhere.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationSource(dir)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in schema")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in schema")
	cmd.AddCommand(statusCmd)

	return cmd
}

type provisionFlags struct {
	username       string
	role           string
	dateOfBirth    string
	address        string
	phone          string
	specialization string
	facilityName   string
}

func (f provisionFlags) attributes() (identity.ProfileAttributes, error) {
	attrs := identity.ProfileAttributes{
		Address:        f.address,
		Phone:          f.phone,
		Specialization: f.specialization,
		FacilityName:   f.facilityName,
	}
	if f.dateOfBirth != "" {
		dob, err := time.Parse(identity.DateLayout, f.dateOfBirth)
		if err != nil {
			return attrs, fmt.Errorf("--date-of-birth must be YYYY-MM-DD: %w", err)
		}
		attrs.DateOfBirth = &dob
	}
	return attrs, nil
}

// provisionCmd attaches a role profile to an existing account. It is how the
// first administrator gets created.
func provisionCmd() *cobra.Command {
	var flags provisionFlags
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Attach a role profile to an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := flags.attributes()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(db.NewTxManager(pool),
				identity.NewIdentityRepoPG(pool), identity.NewPatientRepoPG(pool),
				identity.NewProviderRepoPG(pool), identity.NewAdministratorRepoPG(pool),
				identity.NewPhoneNormalizer(cfg.PhoneRegion))

			ident, err := svc.GetIdentityByUsername(ctx, flags.username)
			if err != nil {
				return fmt.Errorf("look up %q: %w", flags.username, err)
			}
			profile, err := svc.Provisioner().Provision(ctx, ident.ID, flags.role, attrs)
			if err != nil {
				return err
			}
			fmt.Printf("Provisioned %s as %s (profile %s).\n", ident.Username, profile.Role, profile.ID())
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.username, "username", "", "Account to provision")
	cmd.Flags().StringVar(&flags.role, "role", "", "patient, medical or admin")
	cmd.Flags().StringVar(&flags.dateOfBirth, "date-of-birth", "", "Patient date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.address, "address", "", "Patient address")
	cmd.Flags().StringVar(&flags.phone, "phone", "", "Contact phone number")
	cmd.Flags().StringVar(&flags.specialization, "specialization", "", "Medical professional specialization")
	cmd.Flags().StringVar(&flags.facilityName, "facility-name", "", "Administrator facility name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
