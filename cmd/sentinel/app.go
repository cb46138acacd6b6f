package main

import (
	"fmt"
	"os"
	"time"

	"DipSentinel/internal/athstore"
	"DipSentinel/internal/collector"
	"DipSentinel/internal/config"
	"DipSentinel/internal/cycle"
	"DipSentinel/internal/logging"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/strategy"

	"cloud.google.com/go/civil"
	"github.com/phuslu/log"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    *athstore.Store
	recorder recorder.Recorder
	runner   *cycle.Runner
	telegram *notifier.TelegramNotifier
}

func colorMode() logging.ColorMode {
	if noColor {
		return logging.ColorNever
	}
	return logging.ColorAuto
}

// loadBase reads and validates the config and builds the logger.
func loadBase() (*config.Config, *log.Logger, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, logging.UseColor(colorMode(), os.Stderr), os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func openRecorder(cfg *config.Config, logger *log.Logger) recorder.Recorder {
	if cfg.Storage.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Storage.SQLitePath, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

func newApp() (*app, error) {
	cfg, logger, err := loadBase()
	if err != nil {
		return nil, err
	}

	analyzer, err := strategy.NewDropAnalyzer(cfg.Analysis.DropIncrement)
	if err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	fetcher := newFetcher(cfg, time.Now())
	logger.Info().
		Str("source", fetcher.Name()).
		Str("drop_increment", analyzer.Increment().String()+"%").
		Msg("data source selected")

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  athstore.New(cfg.Storage.ATHPath, logger),
	}

	notifiers := []notifier.Notifier{
		notifier.NewConsoleNotifier(os.Stdout, logging.UseColor(colorMode(), os.Stdout)),
	}
	if cfg.EmailEnabled() {
		notifiers = append(notifiers, notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:      cfg.Email.SMTPHost,
			Port:      cfg.Email.SMTPPort,
			Username:  cfg.Email.SMTPUser,
			Password:  cfg.Email.SMTPPassword,
			Sender:    cfg.Email.SenderEmail,
			Recipient: cfg.Email.RecipientEmail,
			UseTLS:    cfg.Email.UseTLS,
			Timeout:   cfg.FetchTimeout(),
		}, cfg.Market.Retries, logger))
	} else {
		logger.Info().Msg("email not configured, skipping email sink")
	}
	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, cfg.Market.Retries, logger)
		notifiers = append(notifiers, a.telegram)
	}

	a.recorder = openRecorder(cfg, logger)

	indices := make([]cycle.Index, len(cfg.Indices))
	for i, idx := range cfg.Indices {
		indices[i] = cycle.Index{Symbol: idx.Symbol, Name: idx.DisplayName()}
	}
	a.runner = &cycle.Runner{
		Indices:         indices,
		Collector:       collector.NewCollector(fetcher, logger),
		Store:           a.store,
		Analyzer:        analyzer,
		Notifiers:       notifiers,
		Recorder:        a.recorder,
		SeedFromHistory: cfg.Analysis.SeedFromHistory,
		Logger:          logger,
	}
	return a, nil
}

// newFetcher builds the configured data source. The static source serves
// market.static_prices dated today, for dry runs without network access.
func newFetcher(cfg *config.Config, now time.Time) collector.Fetcher {
	switch cfg.MarketSource() {
	case "static":
		return collector.NewStaticFetcher(cfg.Market.StaticPrices, civil.DateOf(now))
	case "rest":
		return collector.NewRESTFetcher(cfg.Market.BaseURL, cfg.Market.APIKey, cfg.FetchTimeout(), cfg.Market.Retries, cfg.Proxy)
	default:
		return collector.NewYahooFetcher(cfg.FetchTimeout(), cfg.Market.Retries, cfg.Proxy)
	}
}

func names(cfg *config.Config) map[string]string {
	m := make(map[string]string, len(cfg.Indices))
	for _, idx := range cfg.Indices {
		m[idx.Symbol] = idx.DisplayName()
	}
	return m
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close recorder")
	}
}
