package main

import (
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/logger"
	"gastos/process/report"
)

func main() {
	fs := ff.NewFlagSet("report")
	var (
		username = fs.StringLong("username", "", "username to report for")
		month    = fs.StringLong("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
		list     = fs.BoolLong("list", "list every receipt of the month")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *username == "" {
		fmt.Fprintln(os.Stderr, "error: --username is required")
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
	if err := report.Run(db, os.Stdout, *username, *month, *list, bootstrap.Evaluator(cfg)); err != nil {
		logger.Log.Fatal().Err(err).Msg("report failed")
	}
}
