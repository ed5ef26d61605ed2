// Package sanitize truncates application tables, optionally reseeding master
// data afterwards. It is destructive and refuses to act without confirmation.
package sanitize

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"gastos/pkg/database"
	"gastos/pkg/logger"
)

// DefaultTables lists every application table, children first.
var DefaultTables = []string{
	"alert_rules",
	"receipts",
	"documents",
	"categories",
	"companies",
	"refresh_tokens",
	"users",
	"roles",
}

// Options controls a sanitize run.
type Options struct {
	DryRun        bool
	Yes           bool
	Reseed        bool
	Tables        []string
	AdminPassword string
}

var tableNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma-separated table list and drops invalid
// identifiers, returning them separately.
func ParseTables(s string) (valid, invalid []string) {
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !tableNameRE.MatchString(p) {
			invalid = append(invalid, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, invalid
}

// TruncateStatement quotes the validated names into one TRUNCATE.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run truncates the tables that exist. Nothing is changed in dry-run mode or
// without Yes.
func Run(ctx context.Context, db *gorm.DB, w io.Writer, opts Options) error {
	log := logger.FromContext(ctx)
	tables := opts.Tables
	if len(tables) == 0 {
		tables = DefaultTables
	}

	existing := make([]string, 0, len(tables))
	// check presence individually to avoid any injection risk
	for _, t := range tables {
		if !tableNameRE.MatchString(t) {
			log.Warn().Str("table", t).Msg("skipping invalid table name")
			continue
		}
		var cnt int64
		if err := db.WithContext(ctx).Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			return fmt.Errorf("query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			log.Info().Str("table", t).Msg("table not found, skipping")
		}
	}
	if len(existing) == 0 {
		fmt.Fprintln(w, "no requested tables present in the database; nothing to do")
		return nil
	}

	fmt.Fprintln(w, "Tables considered for truncation:")
	for _, t := range existing {
		fmt.Fprintf(w, " - %s\n", t)
	}
	if opts.DryRun {
		fmt.Fprintln(w, "dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return nil
	}
	if !opts.Yes {
		fmt.Fprintln(w, "Destructive operation. Pass --yes to confirm execution. Aborting.")
		return nil
	}

	stmt := TruncateStatement(existing)
	log.Info().Str("statement", stmt).Msg("executing")
	tctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.WithContext(tctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	fmt.Fprintln(w, "Truncate completed.")

	if opts.Reseed {
		if err := database.Seed(db.WithContext(ctx), opts.AdminPassword); err != nil {
			return fmt.Errorf("reseed failed: %w", err)
		}
		fmt.Fprintln(w, "Reseeded roles, admin user and categories.")
	}
	return nil
}
