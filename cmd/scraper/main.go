package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adda-Baaj/broker-scraper/internal/config"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/internal/pipeline"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("scraper", pflag.ContinueOnError)
	cfgPath := flags.String("config", "", "path to a config file (yaml, json or toml)")
	clearCache := flags.Bool("clear-cache", false, "remove the discovery cache before scraping")
	count := flags.Int("count", 0, "articles to collect per website")
	maxArticles := flags.Int("max-articles", 0, "cap on the final article count, 0 or less disables it")
	websites := flags.StringSlice("websites", nil, "websites to scrape, overriding the configured list")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, nil, log)

	if *clearCache {
		if _, err := p.ClearCache(); err != nil {
			return err
		}
	}

	ov := pipeline.Overrides{Websites: *websites}
	if flags.Changed("count") {
		ov.Count = count
	}
	if flags.Changed("max-articles") {
		ov.MaxArticles = maxArticles
	}

	result, err := p.Run(ctx, ov)
	if err != nil {
		return err
	}
	if result.TotalArticles == 0 {
		log.WarnObj(result.Message, "scrape_result", map[string]any{"status": result.Status})
		return nil
	}
	if err := p.Publish(ctx, result); err != nil {
		log.ErrorObj("publishing finished with errors", "publish_error", map[string]any{"error": err.Error()})
		return err
	}
	log.InfoObj(result.Message, "scrape_result", map[string]any{
		"status": result.Status,
		"total":  result.TotalArticles,
	})
	return nil
}
