package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/users"
)

// runBootstrap creates an organization with its first ADMIN so the API can
// be reached at all:
//
//	lmsd bootstrap -org "CoreMine" -email admin@coremine.example -name "Site Admin" [-site "North Shaft"] [-password ...]
func runBootstrap(ctx context.Context, dbh *sql.DB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(out)
	orgName := fs.String("org", "", "organization name")
	siteName := fs.String("site", "", "optional first site")
	email := fs.String("email", "", "admin email")
	name := fs.String("name", "Administrator", "admin display name")
	password := fs.String("password", "", "admin password; generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*orgName) == "" || strings.TrimSpace(*email) == "" {
		fs.Usage()
		return errors.New("-org and -email are required")
	}

	courses := course.NewSQLStore(dbh)
	us := users.NewSQLStore(dbh)
	org, err := courses.CreateOrg(ctx, strings.TrimSpace(*orgName))
	if err != nil {
		return fmt.Errorf("create org: %w", err)
	}
	u := users.User{OrgID: org.ID, Email: *email, Name: *name, Role: users.RoleAdmin}
	if *siteName != "" {
		site, err := courses.CreateSite(ctx, org.ID, strings.TrimSpace(*siteName))
		if err != nil {
			return fmt.Errorf("create site: %w", err)
		}
		u.SiteID = site.ID
		fmt.Fprintf(out, "site   %s  %s\n", site.ID, site.Name)
	}
	pw := *password
	generated := pw == ""
	if generated {
		if pw, err = users.TempPassword(); err != nil {
			return err
		}
	}
	admin, err := us.Create(ctx, u, pw)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(out, "org    %s  %s\n", org.ID, org.Name)
	fmt.Fprintf(out, "admin  %s  %s\n", admin.ID, admin.Email)
	if generated {
		fmt.Fprintf(out, "password %s\n", pw)
	}
	return nil
}
