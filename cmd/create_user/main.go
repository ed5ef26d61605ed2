package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/crypto/bcrypt"

	"gastos/models"
	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/logger"
)

func main() {
	fs := ff.NewFlagSet("create_user")
	var (
		username = fs.StringLong("username", "", "username to create")
		password = fs.StringLong("password", "", "initial password (min 6 characters)")
		role     = fs.StringLong("role", models.RoleUser, "role name: user or administrator")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*username) == "" || len(*password) < 6 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: --username and a --password of at least 6 characters are required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bootstrap.Logging(cfg)
	db, err := bootstrap.Database(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open db")
	}

	var r models.Role
	if err := db.Where("name = ?", *role).First(&r).Error; err != nil {
		logger.Log.Fatal().Err(err).Str("role", *role).Msg("unknown role")
	}

	var existing models.User
	if err := db.Where("username = ?", *username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", *username, existing.ID)
		return
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("bcrypt failed")
	}
	rid := r.ID
	user := models.User{Username: *username, HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to create user")
	}
	fmt.Printf("created user %s id=%d role=%s\n", *username, user.ID, r.Name)
}
