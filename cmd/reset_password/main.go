package main

import (
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/crypto/bcrypt"

	"gastos/models"
	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/database"
	"gastos/pkg/logger"
)

func main() {
	fs := ff.NewFlagSet("reset_password")
	var (
		username = fs.StringLong("username", "", "username to reset")
		password = fs.StringLong("password", "", "new plaintext password (min 6 chars)")
		revoke   = fs.BoolLong("revoke-sessions", "also revoke every refresh token of the user")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *username == "" || len(*password) < 6 {
		fmt.Fprintln(os.Stderr, "error: --username and a --password of at least 6 characters are required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bootstrap.Logging(cfg)
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("open db")
	}

	var user models.User
	if err := db.Where("username = ?", *username).First(&user).Error; err != nil {
		logger.Log.Fatal().Err(err).Msg("user not found")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("bcrypt")
	}
	if err := db.Model(&user).Update("hashed_password", hash).Error; err != nil {
		logger.Log.Fatal().Err(err).Msg("update failed")
	}
	if *revoke {
		res := db.Model(&models.RefreshToken{}).Where("user_id = ? AND revoked = ?", user.ID, false).Update("revoked", true)
		if res.Error != nil {
			logger.Log.Fatal().Err(res.Error).Msg("revoke refresh tokens")
		}
		fmt.Printf("Revoked %d refresh tokens\n", res.RowsAffected)
	}
	fmt.Printf("Password reset for user %s\n", user.Username)
}
