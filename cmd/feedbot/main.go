package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/feedbot/pkg/bot"
	"github.com/umputun/feedbot/pkg/config"
	"github.com/umputun/feedbot/pkg/fetcher"
	"github.com/umputun/feedbot/pkg/store"
	"github.com/umputun/feedbot/pkg/telegram"
	"github.com/umputun/feedbot/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"feedbot.yml" description:"config file"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Printf("[WARN] can't load config %s, using defaults: %v", opts.Config, err)
		cfg = config.Default()
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	setupLog(opts.Debug, cfg.Telegram.Token)

	log.Printf("[INFO] starting feedbot version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts.Debug); err != nil {
		log.Printf("[ERROR] feedbot failed: %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

// run wires the service and blocks until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, debug bool) error {
	dataStore := store.New(cfg.Storage.DataFile)
	feedFetcher := fetcher.New(cfg.Feeds.FetchTimeout, cfg.Feeds.UserAgent)

	svc := bot.NewService(feedFetcher, dataStore, bot.Params{
		HistorySize:       cfg.Feeds.HistorySize,
		StoryLimit:        cfg.Feeds.StoryLimit,
		DefaultAgeMinutes: cfg.Feeds.DefaultAgeMin,
	})
	// a bad data file starts us empty, warn the operator and keep going
	if err := svc.Load(); err != nil {
		log.Printf("[WARN] can't restore feeds from %s: %v", cfg.Storage.DataFile, err)
	}

	var wg sync.WaitGroup

	if cfg.Telegram.Token != "" {
		tgBot, err := telegram.New(cfg.Telegram.Token, svc, cfg.Telegram.UpdateTimeout)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			tgBot.Run(ctx)
		}()
		log.Printf("[INFO] telegram transport started")
	} else {
		log.Printf("[WARN] no telegram token, chat transport disabled")
	}

	srv := server.New(svc, cfg.Server.Listen, cfg.Server.Timeout, revision, debug)
	err := srv.Run(ctx)

	wg.Wait()
	return err
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	// keep secrets out of the logs
	var nonEmpty []string
	for _, s := range secs {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
