// Команда usage-export выгружает локальный учёт агента (баланс, события
// дневной гистограммы и сессии дневного лимита) в книгу Excel.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/magabrotheeeer/cohost-credits/internal/config"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/logger"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
	"github.com/magabrotheeeer/cohost-credits/internal/services/report"
	"github.com/magabrotheeeer/cohost-credits/internal/storage/jsonstore"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	output := flag.String("output", fmt.Sprintf("usage-%s.xlsx", time.Now().Format("2006-01-02")), "path of the xlsx file")
	flag.Parse()

	if err := run(cfg, *output, log); err != nil {
		log.Error("usage export failed", sl.Err(err))
		os.Exit(1)
	}
	log.Info("usage exported", slog.String("file", *output))
}

func run(cfg *config.Config, output string, log *slog.Logger) (err error) {
	stores := jsonstore.NewStores(jsonstore.Layout{
		ConfigDir: cfg.Paths.ConfigDir,
		TempDir:   cfg.Paths.TempDir,
	}, log)

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return report.Export(f, report.Input{
		Status:    stores.Status.LoadOrZero(),
		Histogram: stores.Histogram.LoadOrZero(),
		Daily:     stores.DailyLimit.LoadOrZero(),
		Location:  cfg.DailyLimit.Location(),
	})
}
