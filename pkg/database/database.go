// Package database opens the Postgres connection, migrates the schema and
// seeds master data.
package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gastos/models"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
)

// AdminUsername is the seeded administrator account.
const AdminUsername = "admin"

// Open connects to Postgres. Slow queries are logged through zerolog.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(zerologWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}
	return db, nil
}

type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	logger.Log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Models lists every table in migration order. Roles go first so the users
// foreign key can be applied.
func Models() []any {
	return []any{
		&models.Role{},
		&models.User{},
		&models.RefreshToken{},
		&models.Company{},
		&models.Category{},
		&models.Document{},
		&models.Receipt{},
		&models.AlertRule{},
	}
}

// Migrate runs AutoMigrate per model so a failure on one table does not
// block the others. Failures are logged and returned joined.
func Migrate(db *gorm.DB) error {
	var errs []error
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			name := fmt.Sprintf("%T", m)
			logger.Log.Warn().Err(err).Str("model", name).Msg("migration warning")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Seed ensures master roles, the admin user and the default categories exist.
func Seed(db *gorm.DB, adminPassword string) error {
	roles := []models.Role{
		{Name: models.RoleAdministrator, Description: "full access"},
		{Name: models.RoleUser, Description: "regular user"},
	}
	for _, r := range roles {
		if err := db.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", AdminUsername).Count(&count).Error; err != nil {
		return fmt.Errorf("count admin: %w", err)
	}
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
			return fmt.Errorf("find administrator role: %w", err)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		rid := role.ID
		admin := models.User{Username: AdminUsername, HashedPassword: hashed, RoleID: &rid}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Log.Info().Str("username", AdminUsername).Msg("seeded admin user")
	}

	return SeedCategories(db)
}

// SeedCategories inserts the default keyword table for categories that do
// not exist yet. Existing categories keep their edited keywords.
func SeedCategories(db *gorm.DB) error {
	for i, c := range extract.DefaultCategories {
		cat := models.Category{Name: c.Name, Keywords: c.Keywords, Position: (i + 1) * 10}
		if err := db.Where("name = ?", c.Name).Attrs(cat).FirstOrCreate(&cat).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

// CategoryRules loads the keyword table in position order. An empty table
// yields the built-in defaults.
func CategoryRules(db *gorm.DB) ([]extract.CategoryRule, error) {
	var cats []models.Category
	if err := db.Order("position, id").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(cats) == 0 {
		return extract.DefaultCategories, nil
	}
	return models.CategoryRules(cats), nil
}

// IsUniqueConstraintError reports whether err is a unique-key violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "SQLSTATE 23505")
}
