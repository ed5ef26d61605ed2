package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"gastos/pkg/bootstrap"
	"gastos/pkg/config"
	"gastos/pkg/extract"
	"gastos/pkg/logger"
	"gastos/pkg/ocr"
	"gastos/pkg/scan"
)

func main() {
	fs := ff.NewFlagSet("scan")
	var (
		file     = fs.StringLong("file", "", "receipt image or PDF to recognize")
		enhance  = fs.BoolLong("enhance", "sharpen and raise contrast before recognition")
		defaults = fs.BoolLong("default-categories", "use the built-in category table instead of the database")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GASTOS")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	bootstrap.Logging(cfg)
	ctx := context.Background()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("read file")
	}
	mime := ocr.DetectMIME(data, "")
	if *enhance {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("decode image for enhancement")
		}
		proc := imaging.Sharpen(img, 2.0)
		proc = imaging.AdjustContrast(proc, 30)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, proc, imaging.PNG); err != nil {
			logger.Log.Fatal().Err(err).Msg("encode enhanced image")
		}
		data, mime = buf.Bytes(), "image/png"
	}

	scorer := extract.NewScorer()
	var p *bootstrap.Pipeline
	if *defaults {
		p, err = bootstrap.PipelineFor(ctx, cfg, extract.DefaultCategories, scorer)
	} else {
		db, derr := bootstrap.Database(cfg)
		if derr != nil {
			logger.Log.Fatal().Err(derr).Msg("failed to open db")
		}
		p, err = bootstrap.NewPipeline(ctx, cfg, db, scorer)
	}
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to build recognition pipeline")
	}

	o := p.Processor.Process(ctx, scan.File{ClientID: "scan", Name: filepath.Base(*file), MIMEType: mime, Data: data})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		logger.Log.Fatal().Err(err).Msg("encode outcome")
	}
	if o.Failed {
		os.Exit(1)
	}
}
