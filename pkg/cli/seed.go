package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/scorecard/pkg/rbac"
	"github.com/platinummonkey/scorecard/pkg/storage"
	"github.com/platinummonkey/scorecard/pkg/users"
)

func (e *env) newSeedCommand() *Command {
	return &Command{
		Name:        "seed",
		Description: "Upsert roles, permissions and default grants",
		Run:         e.runSeed,
	}
}

func (e *env) runSeed(args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	driver, url := dbFlags(flags)
	catalogPath := flags.String("catalog", getEnv("SCORECARD_CATALOG_FILE", ""), "Catalog YAML replacing the embedded one")
	migrate := flags.Bool("migrate", true, "Apply the schema before seeding")
	adminEmail := flags.String("admin-email", "", "Create a User Admin account with this email if none exists")
	adminPassword := flags.String("admin-password", "", "Password for the User Admin account")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if (*adminEmail == "") != (*adminPassword == "") {
		return fmt.Errorf("--admin-email and --admin-password must be given together")
	}

	catalog, err := rbac.LoadCatalog(*catalogPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, dialect, err := e.connect(ctx, *driver, *url)
	if err != nil {
		return err
	}
	defer db.Close()

	if *migrate {
		if err := storage.Migrate(ctx, db, dialect); err != nil {
			return err
		}
	}

	result, err := rbac.Seed(ctx, rbac.NewStore(db), catalog, dialect)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	e.logger.WithFields(logrus.Fields{
		"roles":       result.Roles,
		"permissions": result.Permissions,
		"new_grants":  result.Grants,
	}).Info("Catalog seeded")

	if *adminEmail != "" {
		return e.ensureAdmin(ctx, users.NewStore(db), catalog, *adminEmail, *adminPassword)
	}
	return nil
}

// ensureAdmin creates the bootstrap User Admin unless the email is taken
func (e *env) ensureAdmin(ctx context.Context, store *users.Store, catalog *rbac.Catalog, email, password string) error {
	if _, err := store.FindByEmail(ctx, email); err == nil {
		e.logger.WithField("email", email).Info("Admin account already exists")
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var roleID int64
	for _, r := range catalog.Roles {
		if r.Name == rbac.RoleUserAdmin {
			roleID = r.ID
		}
	}
	if roleID == 0 {
		return fmt.Errorf("catalog has no %q role", rbac.RoleUserAdmin)
	}

	user, err := store.CreateUser(ctx, users.CreateUserInput{
		Username: "admin",
		Email:    email,
		Password: password,
		RoleID:   &roleID,
	}, 0)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	e.logger.WithFields(logrus.Fields{"email": email, "user_id": user.ID}).Info("Admin account created")
	return nil
}
