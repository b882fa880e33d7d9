package main

import (
	"flag"
	"fmt"
	"os"

	"olx-price-pipeline/api"
	"olx-price-pipeline/config"
	"olx-price-pipeline/ml"
	"olx-price-pipeline/scraper/olx"
	"olx-price-pipeline/services"
	"olx-price-pipeline/storage"
	"olx-price-pipeline/utils"
)

const usage = `Usage: olx-price-pipeline <stage> [flags]

Stages:
  scraping   Scrape OLX car listings into the raw CSV
  etl        Clean the raw CSV into the cleaned CSV
  features   Build the v1 feature table from the cleaned CSV
  train      Train the price model and save the artifact
  pipeline   Run scraping + etl + features + train end to end
  api        Serve the prediction HTTP API
  dashboard  Print a summary report over the cleaned dataset

Flags:
  -skip-checks   Skip pre-flight prerequisite checks
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	stage := os.Args[1]
	flags := flag.NewFlagSet(stage, flag.ExitOnError)
	skipChecks := flags.Bool("skip-checks", false, "skip pre-flight prerequisite checks")
	_ = flags.Parse(os.Args[2:])

	logger := utils.NewLogger()
	cfg := config.Load()

	app := &app{cfg: cfg, logger: logger, skipChecks: *skipChecks}

	var err error
	switch stage {
	case "scraping":
		err = app.runScraping()
	case "etl":
		err = app.runETL()
	case "features":
		err = app.runFeatures()
	case "train":
		err = app.runTrain()
	case "pipeline":
		err = app.runPipeline()
	case "api":
		err = app.runAPI()
	case "dashboard":
		err = app.runDashboard()
	default:
		fmt.Fprintf(os.Stderr, "Unknown stage %q\n\n%s", stage, usage)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("Stage %q failed: %v", stage, err)
		os.Exit(1)
	}
}

type app struct {
	cfg        *config.Config
	logger     *utils.Logger
	skipChecks bool
}

func (a *app) runScraping() error {
	if !a.skipChecks {
		if bin := olx.FindChromeBinary(a.cfg.ChromeBin); bin == "" {
			return fmt.Errorf("no Chrome/Chromium binary found — install one, set CHROME_BIN, or pass -skip-checks")
		}
	}

	a.logger.Info("=== Stage: scraping ===")
	a.logger.Info("Config — pages: %d | concurrency: %d | rate: %dms",
		a.cfg.PagesToScrape, a.cfg.MaxConcurrency, a.cfg.RateLimitMs)

	scraper := olx.New(a.cfg, a.logger)
	rawListings, err := scraper.Scrape()
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	if len(rawListings) == 0 {
		return fmt.Errorf("no listings were scraped")
	}

	store := storage.NewCSVStore(a.logger)
	if err := store.WriteRaw(a.cfg.RawCSVPath, rawListings); err != nil {
		return fmt.Errorf("write raw CSV: %w", err)
	}

	a.logger.Info("Raw listings saved to %s (%d rows)", a.cfg.RawCSVPath, len(rawListings))
	return nil
}

func (a *app) runETL() error {
	if err := a.requireFile(a.cfg.RawCSVPath, "scraping"); err != nil {
		return err
	}

	a.logger.Info("=== Stage: etl ===")

	store := storage.NewCSVStore(a.logger)
	rawListings, err := store.ReadRaw(a.cfg.RawCSVPath)
	if err != nil {
		return fmt.Errorf("read raw CSV: %w", err)
	}

	cleaner := services.NewCleaner(a.logger, a.cfg.CurrentYear)
	cleaned, stats, err := cleaner.Clean(rawListings)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}

	a.logger.Info("Cleaned dataset: %d of %d listings kept (%d duplicates, %d missing critical fields)",
		len(cleaned), stats.Input, stats.DuplicatesDropped, stats.MissingCriticalDropped)

	if err := store.WriteCleaned(a.cfg.CleanedCSVPath, cleaned); err != nil {
		return fmt.Errorf("write cleaned CSV: %w", err)
	}
	a.logger.Info("Cleaned listings saved to %s", a.cfg.CleanedCSVPath)

	if a.cfg.PostgresEnabled {
		var sink storage.ListingWriter
		sink, err = storage.NewPostgresWriter(a.cfg.DSN())
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer sink.Close()

		if err := sink.Write(cleaned); err != nil {
			return fmt.Errorf("write postgres: %w", err)
		}
		a.logger.Info("Cleaned listings stored in PostgreSQL (table: car_listings)")
	}

	return nil
}

func (a *app) runFeatures() error {
	if err := a.requireFile(a.cfg.CleanedCSVPath, "etl"); err != nil {
		return err
	}

	a.logger.Info("=== Stage: features ===")

	store := storage.NewCSVStore(a.logger)
	listings, err := store.ReadCleaned(a.cfg.CleanedCSVPath)
	if err != nil {
		return fmt.Errorf("read cleaned CSV: %w", err)
	}

	builder := services.NewFeatureBuilder(a.logger, a.cfg.CurrentYear)
	vocab := builder.BuildVocabulary(listings)

	header, records, err := builder.BuildV1Table(listings, vocab)
	if err != nil {
		return fmt.Errorf("build feature table: %w", err)
	}

	if err := store.WriteTable(a.cfg.FeaturesCSVPath, header, records); err != nil {
		return fmt.Errorf("write feature CSV: %w", err)
	}

	a.logger.Info("Feature table saved to %s (%d rows, %d columns)",
		a.cfg.FeaturesCSVPath, len(records), len(header))
	return nil
}

func (a *app) runTrain() error {
	if err := a.requireFile(a.cfg.CleanedCSVPath, "etl"); err != nil {
		return err
	}

	a.logger.Info("=== Stage: train ===")

	store := storage.NewCSVStore(a.logger)
	listings, err := store.ReadCleaned(a.cfg.CleanedCSVPath)
	if err != nil {
		return fmt.Errorf("read cleaned CSV: %w", err)
	}

	builder := services.NewFeatureBuilder(a.logger, a.cfg.CurrentYear)
	vocab := builder.BuildVocabulary(listings)
	rows, target, schema, err := builder.BuildMatrix(listings, vocab)
	if err != nil {
		return fmt.Errorf("build training matrix: %w", err)
	}

	params := ml.DefaultGBParams()
	a.logger.Info("Training — %d rows, %d columns | trees: %d, depth: %d, lr: %.3f",
		len(rows), len(schema), params.NumTrees, params.MaxDepth, params.LearningRate)

	pipeline, err := ml.Train(rows, target, schema, vocab, params, a.cfg.CurrentYear)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	if err := pipeline.Save(a.cfg.ModelPath); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	a.logger.Info("Model artifact saved to %s", a.cfg.ModelPath)
	return nil
}

// runPipeline chains the batch stages. Each stage re-reads the previous
// stage's file output, so a partial run can be resumed stage by stage.
func (a *app) runPipeline() error {
	a.logger.Info("=== Full pipeline run ===")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"scraping", a.runScraping},
		{"etl", a.runETL},
		{"features", a.runFeatures},
		{"train", a.runTrain},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("pipeline stopped at %s: %w", step.name, err)
		}
	}

	a.logger.Info("=== Full pipeline complete ===")
	return nil
}

func (a *app) runAPI() error {
	if !a.skipChecks {
		if err := a.requireFile(a.cfg.ModelPath, "train"); err != nil {
			return err
		}
	}

	a.logger.Info("=== Stage: api ===")

	predictor, err := api.NewPredictorService(a.cfg.ModelPath, a.logger)
	if err != nil {
		return err
	}

	server := api.NewServer(a.cfg.APIAddr, predictor, a.logger)
	return server.Run()
}

func (a *app) runDashboard() error {
	if err := a.requireFile(a.cfg.CleanedCSVPath, "etl"); err != nil {
		return err
	}

	insights := services.NewInsightService(a.logger)
	report, err := insights.Generate(a.cfg.CleanedCSVPath)
	if err != nil {
		return err
	}
	insights.Print(report)
	return nil
}

// requireFile is the per-stage pre-flight check: the input artifact must
// exist, and the message names the stage that produces it.
func (a *app) requireFile(path, producedBy string) error {
	if a.skipChecks {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s not found — run the %q stage first", path, producedBy)
	}
	return nil
}
